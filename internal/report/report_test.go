package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/safe"
)

func sampleInput(t *testing.T) Input {
	t.Helper()
	terms := safe.Terms{ValuationCap: 5000000, DiscountRate: 20, InvestmentAmount: 250000, ProRataRights: true}
	a := safe.DefaultAssumptions(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	multipliers := append(safe.DefaultMultipliers(), safe.GrowthMultiplier{Name: "Broken", Multiplier: 0})
	set := safe.BuildScenarios(context.Background(), terms, multipliers, a)
	assessment, err := benchmark.Assess(terms, benchmark.DefaultTable, benchmark.IndustrySoftware, benchmark.StageSeed)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	return Input{
		Terms:        terms,
		TermsVersion: 3,
		Assessment:   &assessment,
		Scenarios:    set,
		GeneratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildMarkdownSections(t *testing.T) {
	md := BuildMarkdown(sampleInput(t))
	for _, want := range []string{
		"# SAFE Scenario Report",
		"- Generated: 2026-03-01T12:00:00Z",
		"- Terms version: 3",
		"- Scenarios: 3 built, 1 failed",
		safe.Disclaimer,
		"| Valuation cap | $5,000,000 |",
		"| Discount rate | 20.00% |",
		"| Pro rata rights | Yes |",
		"## Benchmark Position",
		"## Scenario Summary",
		"## Scenario: Conservative",
		"## Scenario: Base",
		"## Scenario: Optimistic",
		"| SAFE Round | 2026-01-15 | SAFE |",
		"### Final Cap Table",
		"## Failed Scenarios",
		"| Broken | invalid_input |",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("report missing %q\n%s", want, md)
		}
	}
}

func TestBuildMarkdownWithoutOptionalSections(t *testing.T) {
	md := BuildMarkdown(Input{Terms: safe.Terms{ValuationCap: 1, InvestmentAmount: 1}})
	for _, absent := range []string{"Generated:", "Terms version", "Benchmark Position", "Scenario Summary", "Failed Scenarios"} {
		if strings.Contains(md, absent) {
			t.Fatalf("unexpected %q in\n%s", absent, md)
		}
	}
}

func TestFormatting(t *testing.T) {
	for _, tc := range []struct {
		got, want string
	}{
		{Money(5000000), "$5,000,000"},
		{Money(999.6), "$1,000"},
		{Money(-1234567), "-$1,234,567"},
		{Money(0), "$0"},
		{Shares(10666666.67), "10,666,667"},
		{Percent(5), "5.00%"},
		{Percent(66.115702), "66.12%"},
		{Price(0.421052631), "$0.4211"},
	} {
		if tc.got != tc.want {
			t.Fatalf("got %q want %q", tc.got, tc.want)
		}
	}
}

func TestCellEscapesPipes(t *testing.T) {
	if got := cell("a|b\nc"); got != `a\|b c` {
		t.Fatalf("cell = %q", got)
	}
}

func TestApplyPrintLayoutHooksBreaksBeforeLaterScenarios(t *testing.T) {
	in := "<h2>Scenario Summary</h2><h2>Scenario: Conservative</h2><p>x</p><h2>Scenario: Base</h2>"
	out := applyPrintLayoutHooks(in)
	if strings.Contains(out, `<h2 data-page-break-before="true">Scenario: Conservative</h2>`) {
		t.Fatalf("first scenario should not break: %s", out)
	}
	if !strings.Contains(out, `<h2 data-page-break-before="true">Scenario: Base</h2>`) {
		t.Fatalf("expected page break before second scenario: %s", out)
	}
	if !strings.Contains(out, "<h2>Scenario Summary</h2>") {
		t.Fatalf("summary heading should be untouched: %s", out)
	}
}

func TestBuildHTMLRendersTables(t *testing.T) {
	doc, err := BuildHTML(BuildMarkdown(sampleInput(t)))
	if err != nil {
		t.Fatalf("build html: %v", err)
	}
	for _, want := range []string{"<table>", "<title>SAFE Scenario Report</title>", `data-page-break-before="true"`, "border-collapse"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("html missing %q", want)
		}
	}
}

func TestPaperOptions(t *testing.T) {
	cases := []struct {
		name          string
		width, height float64
	}{
		{"", 8.5, 11},
		{"Letter", 8.5, 11},
		{"a4", 8.27, 11.69},
	}
	for _, tc := range cases {
		o, err := PaperOptions(tc.name)
		if err != nil {
			t.Fatalf("%q: %v", tc.name, err)
		}
		p := o.params()
		if p.PaperWidth != tc.width || p.PaperHeight != tc.height {
			t.Fatalf("%q: paper %vx%v", tc.name, p.PaperWidth, p.PaperHeight)
		}
		if p.MarginBottom != 0.75 || p.MarginLeft != 0.5 || p.MarginRight != 0.5 || !p.DisplayHeaderFooter {
			t.Fatalf("%q: params %+v", tc.name, p)
		}
		if !strings.Contains(p.FooterTemplate, "SAFE Scenario Report &middot; Page") {
			t.Fatalf("%q: footer %s", tc.name, p.FooterTemplate)
		}
	}
	if _, err := PaperOptions("legal"); err == nil {
		t.Fatal("expected unknown paper size error")
	}
}

func TestFooterEscapesLabel(t *testing.T) {
	o := LetterPrintOptions()
	o.FooterLabel = "Acme <Draft>"
	if f := o.footer(); !strings.Contains(f, "Acme &lt;Draft&gt; &middot; Page") {
		t.Fatalf("footer = %s", f)
	}
	o.FooterLabel = ""
	if f := o.footer(); strings.Contains(f, "&middot;") {
		t.Fatalf("footer = %s", f)
	}
}

func TestNewChromiumPDFRendererDefaultsGeometry(t *testing.T) {
	r := NewChromiumPDFRenderer(PrintOptions{})
	if r.print.PaperWidth != 8.5 || r.print.Timeout != renderTimeout {
		t.Fatalf("print options = %+v", r.print)
	}
	r = NewChromiumPDFRenderer(PrintOptions{PaperWidth: 8.27, PaperHeight: 11.69})
	if r.print.Timeout != renderTimeout || r.print.PaperHeight != 11.69 {
		t.Fatalf("print options = %+v", r.print)
	}
}
