package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/safe"
)

type Input struct {
	Terms        safe.Terms
	TermsVersion int
	Assessment   *benchmark.Assessment
	Scenarios    safe.ScenarioSet
	GeneratedAt  time.Time
}

// BuildMarkdown renders the terms, their benchmark position and every
// scenario ledger as a single markdown document.
func BuildMarkdown(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# SAFE Scenario Report\n\n")
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	}
	if in.TermsVersion > 0 {
		fmt.Fprintf(&b, "- Terms version: %d\n", in.TermsVersion)
	}
	fmt.Fprintf(&b, "- Scenarios: %d built, %d failed\n\n", len(in.Scenarios.Scenarios), len(in.Scenarios.Failures))
	fmt.Fprintf(&b, "> %s\n\n", safe.Disclaimer)

	writeTerms(&b, in.Terms)
	if in.Assessment != nil {
		writeAssessment(&b, *in.Assessment)
	}
	writeSummary(&b, in.Scenarios.Scenarios)
	for _, sc := range in.Scenarios.Scenarios {
		writeScenario(&b, sc)
	}
	if len(in.Scenarios.Failures) > 0 {
		fmt.Fprintf(&b, "## Failed Scenarios\n\n")
		fmt.Fprintf(&b, "| Scenario | Kind | Error |\n|---|---|---|\n")
		for _, f := range in.Scenarios.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(f.Name), cell(f.Kind), cell(f.Error))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeTerms(b *strings.Builder, t safe.Terms) {
	fmt.Fprintf(b, "## Terms\n\n| Term | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Valuation cap | %s |\n", Money(t.ValuationCap))
	fmt.Fprintf(b, "| Discount rate | %s |\n", Percent(t.DiscountRate))
	fmt.Fprintf(b, "| Investment amount | %s |\n", Money(t.InvestmentAmount))
	fmt.Fprintf(b, "| Pro rata rights | %s |\n", yesNo(t.ProRataRights))
	fmt.Fprintf(b, "| MFN provision | %s |\n", yesNo(t.MFNProvision))
	fmt.Fprintf(b, "| Board observer | %s |\n\n", yesNo(t.BoardObserver))
}

func writeAssessment(b *strings.Builder, a benchmark.Assessment) {
	fmt.Fprintf(b, "## Benchmark Position\n\n")
	fmt.Fprintf(b, "Compared with %s companies at the %s stage.\n\n", a.Industry, a.Stage)
	fmt.Fprintf(b, "| Metric | Value | Min | Median | Max | Percentile | Position |\n|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(b, "| Valuation cap | %s | %s | %s | %s | %.0f | %s |\n",
		Money(a.ValuationCap.Value), Money(a.ValuationCap.Range.Min), Money(a.ValuationCap.Range.Median), Money(a.ValuationCap.Range.Max),
		a.ValuationCap.Rank.Percentile, a.ValuationCap.Rank.Label)
	fmt.Fprintf(b, "| Discount rate | %s | %s | %s | %s | %.0f | %s |\n\n",
		Percent(a.DiscountRate.Value), Percent(a.DiscountRate.Range.Min), Percent(a.DiscountRate.Range.Median), Percent(a.DiscountRate.Range.Max),
		a.DiscountRate.Rank.Percentile, a.DiscountRate.Rank.Label)
}

func writeSummary(b *strings.Builder, scenarios []safe.ProjectionScenario) {
	if len(scenarios) == 0 {
		return
	}
	fmt.Fprintf(b, "## Scenario Summary\n\n")
	fmt.Fprintf(b, "| Scenario | Growth | Expected Exit Value | Founder Ownership | Investor Multiple |\n|---|---|---|---|---|\n")
	for _, sc := range scenarios {
		fmt.Fprintf(b, "| %s | %.2fx | %s | %s | %.2fx |\n",
			cell(sc.Name), sc.GrowthMultiplier, Money(sc.Summary.ExpectedValue), Percent(sc.Summary.FounderOwnership), sc.Summary.InvestorMultiple)
	}
	b.WriteString("\n")
}

func writeScenario(b *strings.Builder, sc safe.ProjectionScenario) {
	fmt.Fprintf(b, "## Scenario: %s\n\n", sc.Name)
	if sc.Description != "" {
		fmt.Fprintf(b, "%s\n\n", sc.Description)
	}

	fmt.Fprintf(b, "### Dilution\n\n")
	fmt.Fprintf(b, "| Round | Date | Kind | New Shares | Shares After | Price / Share | Post-Money |\n|---|---|---|---|---|---|---|\n")
	for _, step := range sc.Dilution {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(step.Round.Name), step.Round.Date.Format("2006-01-02"), step.Round.Kind,
			Shares(step.NewShares), Shares(step.TotalSharesAfter), Price(step.PricePerShare), Money(step.PostMoneyValuation))
	}
	b.WriteString("\n")

	if n := len(sc.Dilution); n > 0 {
		fmt.Fprintf(b, "### Final Cap Table\n\n| Stakeholder | Role | Shares | Ownership |\n|---|---|---|---|\n")
		for _, s := range sc.Dilution[n-1].Stakeholders {
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", cell(s.Name), s.Role, Shares(s.InitialShares), Percent(s.Ownership))
		}
		b.WriteString("\n")
	}

	investor := safeInvestor(sc.FundingRounds)
	fmt.Fprintf(b, "### Exit Outcomes\n\n")
	fmt.Fprintf(b, "| Exit Value | Multiple | Tier | Timing | Probability | Investor Payout | Investor Multiple |\n|---|---|---|---|---|---|---|\n")
	for _, o := range sc.ExitOutcomes {
		r := o.PerStakeholder[investor]
		fmt.Fprintf(b, "| %s | %.2fx | %s | %s | %s | %s | %.2fx |\n",
			Money(o.ExitValue), o.Multiple, o.Tier, o.Timing, Percent(o.Probability*100), Money(r.PayoutValue), r.ReturnMultiple)
	}
	fmt.Fprintf(b, "\nProbability-weighted exit value: **%s**. Founders keep **%s**; the SAFE investor's weighted multiple is **%.2fx**.\n\n",
		Money(sc.Summary.ExpectedValue), Percent(sc.Summary.FounderOwnership), sc.Summary.InvestorMultiple)
}

func safeInvestor(rounds []safe.FundingRound) string {
	for _, r := range rounds {
		if r.Kind == safe.RoundSAFE {
			return safe.ParticipantName(r)
		}
	}
	return ""
}

// Money formats a dollar amount rounded to whole dollars with thousands
// separators.
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(0)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + "$" + group(d.String())
}

func Price(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(4)
}

func Shares(v float64) string {
	return group(decimal.NewFromFloat(v).Round(0).String())
}

func Percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var out strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		out.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if out.Len() > 0 {
			out.WriteByte(',')
		}
		out.WriteString(digits[i : i+3])
	}
	return out.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
