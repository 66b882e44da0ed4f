package safe

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var day0 = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func founders() []Stakeholder {
	return []Stakeholder{
		{Name: "Founders", Role: RoleFounder, InitialShares: 8000000},
		{Name: "Employee Pool", Role: RoleEmployeePool, InitialShares: 1000000},
	}
}

func holder(step DilutionStep, name string) (Stakeholder, bool) {
	for _, s := range step.Stakeholders {
		if s.Name == name {
			return s, true
		}
	}
	return Stakeholder{}, false
}

func TestSimulatePricedRound(t *testing.T) {
	rounds := []FundingRound{{Name: "Series A", Kind: RoundPricedEquity, Amount: 2000000, Valuation: 8000000, Date: day0}}
	ledger, err := Simulate(sampleTerms(), rounds, founders(), 10000000)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("expected 1 step, got %d", len(ledger))
	}
	step := ledger[0]
	if !approx(step.NewShares, 2500000, 1e-6) || !approx(step.TotalSharesAfter, 12500000, 1e-6) {
		t.Fatalf("unexpected issuance: %+v", step)
	}
	f, _ := holder(step, "Founders")
	if !approx(f.Ownership, 64, 1e-9) {
		t.Fatalf("founder ownership: got %v want 64", f.Ownership)
	}
	if !approx(step.PostMoneyValuation, 10000000, 1e-3) {
		t.Fatalf("post-money: got %v want 10M", step.PostMoneyValuation)
	}
	if !approx(step.PricePerShare, 0.8, 1e-12) {
		t.Fatalf("price per share: got %v want 0.8", step.PricePerShare)
	}
}

func TestSimulateSAFERoundSolvesPostRoundOwnership(t *testing.T) {
	rounds := []FundingRound{{Name: "Seed SAFE", Kind: RoundSAFE, Amount: 250000, Valuation: 20000000, Date: day0}}
	ledger, err := Simulate(sampleTerms(), rounds, founders(), 10000000)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	step := ledger[0]
	inv, ok := holder(step, ParticipantName(rounds[0]))
	if !ok {
		t.Fatal("expected SAFE participant in cap table")
	}
	if !approx(inv.Ownership, 5, 1e-9) {
		t.Fatalf("SAFE ownership after round: got %v want 5", inv.Ownership)
	}
	if !approx(inv.InitialShares/step.TotalSharesAfter, 0.05, 1e-12) {
		t.Fatalf("fraction of post-round total: %v", inv.InitialShares/step.TotalSharesAfter)
	}
	if inv.Invested != 250000 || inv.Role != RoleInvestor {
		t.Fatalf("unexpected participant: %+v", inv)
	}
}

func TestSimulateDilutionInvariants(t *testing.T) {
	rounds := []FundingRound{
		{Name: "Series B", Kind: RoundPricedEquity, Amount: 8000000, Valuation: 40000000, Date: day0.AddDate(2, 0, 0)},
		{Name: "SAFE", Kind: RoundSAFE, Amount: 250000, Valuation: 6000000, Date: day0},
		{Name: "Series A", Kind: RoundPricedEquity, Amount: 3000000, Valuation: 12000000, Date: day0.AddDate(1, 0, 0)},
	}
	initial := founders()
	ledger, err := Simulate(sampleTerms(), rounds, initial, 10000000)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	wantOrder := []string{"SAFE", "Series A", "Series B"}
	prevShares := 10000000.0
	prevFounder := 80.0
	for i, step := range ledger {
		if step.Round.Name != wantOrder[i] {
			t.Fatalf("step %d: got round %s want %s", i, step.Round.Name, wantOrder[i])
		}
		if step.TotalSharesBefore != prevShares {
			t.Fatalf("step %d: shares before %v, previous after %v", i, step.TotalSharesBefore, prevShares)
		}
		if !(step.TotalSharesAfter > step.TotalSharesBefore) {
			t.Fatalf("step %d: shares did not grow", i)
		}
		named := 0.0
		total := 0.0
		for _, s := range step.Stakeholders {
			total += s.Ownership
			if s.Name == "Founders" || s.Name == "Employee Pool" {
				named += s.InitialShares
			}
		}
		if named != 9000000 {
			t.Fatalf("step %d: named share count changed to %v", i, named)
		}
		if total > 100+1e-9 {
			t.Fatalf("step %d: ownership sums to %v", i, total)
		}
		f, _ := holder(step, "Founders")
		if f.Ownership > prevFounder {
			t.Fatalf("step %d: founder ownership rose from %v to %v", i, prevFounder, f.Ownership)
		}
		prevFounder = f.Ownership
		prevShares = step.TotalSharesAfter
	}
	if !reflect.DeepEqual(initial, founders()) {
		t.Fatalf("initial stakeholders mutated: %+v", initial)
	}
	if rounds[0].Name != "Series B" {
		t.Fatal("input round order mutated")
	}
}

func TestSimulateFullyAttributedSumsTo100(t *testing.T) {
	initial := []Stakeholder{
		{Name: "Founders", Role: RoleFounder, InitialShares: 9000000},
		{Name: "Employee Pool", Role: RoleEmployeePool, InitialShares: 1000000},
	}
	rounds := []FundingRound{
		{Name: "SAFE", Kind: RoundSAFE, Amount: 250000, Valuation: 5000000, Date: day0},
		{Name: "Series A", Kind: RoundPricedEquity, Amount: 1000000, Valuation: 10000000, Date: day0.AddDate(1, 0, 0)},
	}
	ledger, err := Simulate(sampleTerms(), rounds, initial, 10000000)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	for i, step := range ledger {
		total := 0.0
		for _, s := range step.Stakeholders {
			total += s.Ownership
		}
		if !approx(total, 100, 1e-9) {
			t.Fatalf("step %d: expected 100%%, got %v", i, total)
		}
	}
}

func TestSimulateRoundOrderIsNotCommutative(t *testing.T) {
	valuations := []float64{4e6, 8e6, 16e6, 32e6}
	found := false
	for _, v1 := range valuations {
		for _, v2 := range valuations {
			if v1 == v2 {
				continue
			}
			a := FundingRound{Name: "Alpha", Kind: RoundPricedEquity, Amount: 1e6, Valuation: v1}
			b := FundingRound{Name: "Beta", Kind: RoundPricedEquity, Amount: 1e6, Valuation: v2}
			a.Date, b.Date = day0, day0.AddDate(1, 0, 0)
			first, err := Simulate(sampleTerms(), []FundingRound{a, b}, founders(), 1e7)
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}
			a.Date, b.Date = day0.AddDate(1, 0, 0), day0
			second, err := Simulate(sampleTerms(), []FundingRound{a, b}, founders(), 1e7)
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}
			x, _ := holder(first[1], "Alpha Investors")
			y, _ := holder(second[1], "Alpha Investors")
			if !approx(x.Ownership, y.Ownership, 1e-9) {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected reordering rounds to change ownership for at least one pair")
	}
}

func TestSimulateSAFEThenPricedDiffersFromReverse(t *testing.T) {
	safeRound := FundingRound{Name: "SAFE", Kind: RoundSAFE, Amount: 250000, Valuation: 20000000, Date: day0}
	priced := FundingRound{Name: "Series A", Kind: RoundPricedEquity, Amount: 2000000, Valuation: 8000000, Date: day0.AddDate(1, 0, 0)}
	first, err := Simulate(sampleTerms(), []FundingRound{safeRound, priced}, founders(), 1e7)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	safeRound.Date, priced.Date = priced.Date, safeRound.Date
	second, err := Simulate(sampleTerms(), []FundingRound{safeRound, priced}, founders(), 1e7)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	x, _ := holder(first[1], "SAFE Investor")
	y, _ := holder(second[1], "SAFE Investor")
	if !approx(x.Ownership, 4, 1e-9) || !approx(y.Ownership, 5, 1e-9) {
		t.Fatalf("expected 4%% then 5%%, got %v and %v", x.Ownership, y.Ownership)
	}
}

func TestSimulateRejectsInvalidRounds(t *testing.T) {
	good := FundingRound{Name: "Series A", Kind: RoundPricedEquity, Amount: 1e6, Valuation: 1e7, Date: day0}
	cases := []struct {
		name  string
		round FundingRound
	}{
		{"zero valuation", FundingRound{Name: "X", Kind: RoundPricedEquity, Amount: 1e6, Valuation: 0, Date: day0.AddDate(1, 0, 0)}},
		{"negative amount", FundingRound{Name: "X", Kind: RoundPricedEquity, Amount: -5, Valuation: 1e7, Date: day0.AddDate(1, 0, 0)}},
		{"zero safe valuation", FundingRound{Name: "X", Kind: RoundSAFE, Amount: 1e5, Valuation: 0, Date: day0.AddDate(1, 0, 0)}},
		{"unknown kind", FundingRound{Name: "X", Kind: "DEBT", Amount: 1e5, Valuation: 1e7, Date: day0.AddDate(1, 0, 0)}},
		{"missing name", FundingRound{Kind: RoundPricedEquity, Amount: 1e5, Valuation: 1e7, Date: day0.AddDate(1, 0, 0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, err := Simulate(sampleTerms(), []FundingRound{good, tc.round}, founders(), 1e7)
			if !errors.Is(err, ErrInvalidRound) {
				t.Fatalf("expected invalid round error, got %v", err)
			}
			if ledger != nil {
				t.Fatalf("expected no partial ledger, got %d steps", len(ledger))
			}
		})
	}
}

func TestSimulateRejectsInvalidCapTable(t *testing.T) {
	if _, err := Simulate(sampleTerms(), nil, founders(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero shares, got %v", err)
	}
	over := []Stakeholder{{Name: "Founders", Role: RoleFounder, InitialShares: 2e7}}
	if _, err := Simulate(sampleTerms(), nil, over, 1e7); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for over-attributed table, got %v", err)
	}
}

func TestSimulateAcceptsCapTableWithinTolerance(t *testing.T) {
	// Attribution just over the outstanding count passes the cap-table
	// check, so the rounds that follow must not reject it either.
	holders := []Stakeholder{{Name: "Founders", Role: RoleFounder, InitialShares: 1e7 * (1 + 5e-10)}}
	rounds := []FundingRound{{Name: "Series A", Kind: RoundPricedEquity, Amount: 2000000, Valuation: 8000000, Date: day0}}
	ledger, err := Simulate(sampleTerms(), rounds, holders, 1e7)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("ledger length %d", len(ledger))
	}
}

func TestSimulateSAFERoundPropagatesConversionError(t *testing.T) {
	terms := Terms{ValuationCap: 100000, DiscountRate: 0, InvestmentAmount: 250000}
	rounds := []FundingRound{{Name: "SAFE", Kind: RoundSAFE, Amount: 250000, Valuation: 1e6, Date: day0}}
	ledger, err := Simulate(terms, rounds, founders(), 1e7)
	if !errors.Is(err, ErrInvalidInput) || ledger != nil {
		t.Fatalf("expected invalid input with no ledger, got %v (%d steps)", err, len(ledger))
	}
}
