package safe

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type GrowthMultiplier struct {
	Name       string  `json:"name" yaml:"name"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

func DefaultMultipliers() []GrowthMultiplier {
	return []GrowthMultiplier{
		{Name: "Conservative", Multiplier: 0.7},
		{Name: "Base", Multiplier: 1.0},
		{Name: "Optimistic", Multiplier: 1.5},
	}
}

// Assumptions are the cap-table and exit parameters shared by every
// scenario in a build. StartDate dates the SAFE round; later rounds are
// placed one and two years after it.
type Assumptions struct {
	StartDate         time.Time `json:"start_date" yaml:"start_date"`
	InitialShares     float64   `json:"initial_shares" yaml:"initial_shares"`
	FounderShare      float64   `json:"founder_share" yaml:"founder_share"`
	EmployeePoolShare float64   `json:"employee_pool_share" yaml:"employee_pool_share"`
	YearsToExit       float64   `json:"years_to_exit" yaml:"years_to_exit"`
	ExitMultiples     []float64 `json:"exit_multiples" yaml:"exit_multiples"`
	Tiers             []Tier    `json:"-" yaml:"-"`
}

func DefaultAssumptions(start time.Time) Assumptions {
	return Assumptions{
		StartDate:         start,
		InitialShares:     10_000_000,
		FounderShare:      0.8,
		EmployeePoolShare: 0.1,
		YearsToExit:       5,
		ExitMultiples:     []float64{0.5, 1, 2, 3, 5},
	}
}

func (a Assumptions) validate() error {
	if a.StartDate.IsZero() {
		return invalidInput("start date is required")
	}
	if !finitePositive(a.InitialShares) {
		return invalidInput("initial shares must be > 0, got %v", a.InitialShares)
	}
	if a.FounderShare < 0 || a.EmployeePoolShare < 0 || a.FounderShare+a.EmployeePoolShare > 1 {
		return invalidInput("founder share %v and pool share %v must be non-negative and total at most 1", a.FounderShare, a.EmployeePoolShare)
	}
	if a.YearsToExit < 0 {
		return invalidInput("years to exit must be >= 0, got %v", a.YearsToExit)
	}
	if len(a.ExitMultiples) == 0 {
		return invalidInput("at least one exit multiple is required")
	}
	return nil
}

// Stakeholders is the initial cap table implied by the share split.
func (a Assumptions) Stakeholders() []Stakeholder {
	return []Stakeholder{
		{Name: "Founders", Role: RoleFounder, InitialShares: a.InitialShares * a.FounderShare},
		{Name: "Employee Pool", Role: RoleEmployeePool, InitialShares: a.InitialShares * a.EmployeePoolShare},
	}
}

type ScenarioFailure struct {
	Name  string `json:"name" yaml:"name"`
	Kind  string `json:"kind" yaml:"kind"`
	Error string `json:"error" yaml:"error"`
}

type ScenarioSet struct {
	Scenarios []ProjectionScenario `json:"scenarios" yaml:"scenarios"`
	Failures  []ScenarioFailure    `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Lookup returns the scenario with the given name.
func (s ScenarioSet) Lookup(name string) (ProjectionScenario, bool) {
	for _, sc := range s.Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return ProjectionScenario{}, false
}

// ByName returns the scenarios keyed by name.
func (s ScenarioSet) ByName() map[string]ProjectionScenario {
	out := make(map[string]ProjectionScenario, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		out[sc.Name] = sc
	}
	return out
}

// ScenarioRounds synthesizes the fixed round shape for one growth
// multiplier: the SAFE at the current terms, then Series A and Series B at
// two and four times the cap scaled by the multiplier.
func ScenarioRounds(terms Terms, multiplier float64, start time.Time) []FundingRound {
	return []FundingRound{
		{Name: "SAFE Round", Kind: RoundSAFE, Amount: terms.InvestmentAmount, Valuation: terms.ValuationCap, Date: start},
		{Name: "Series A", Kind: RoundPricedEquity, Amount: terms.InvestmentAmount * 4, Valuation: terms.ValuationCap * 2 * multiplier, Date: start.AddDate(1, 0, 0)},
		{Name: "Series B", Kind: RoundPricedEquity, Amount: terms.InvestmentAmount * 8, Valuation: terms.ValuationCap * 4 * multiplier, Date: start.AddDate(2, 0, 0)},
	}
}

// BuildScenario runs one named scenario end to end.
func BuildScenario(terms Terms, gm GrowthMultiplier, a Assumptions) (ProjectionScenario, error) {
	if err := terms.Validate(); err != nil {
		return ProjectionScenario{}, err
	}
	if err := a.validate(); err != nil {
		return ProjectionScenario{}, err
	}
	if !finitePositive(gm.Multiplier) {
		return ProjectionScenario{}, invalidInput("growth multiplier must be > 0, got %v", gm.Multiplier)
	}

	rounds := ScenarioRounds(terms, gm.Multiplier, a.StartDate)
	ledger, err := Simulate(terms, rounds, a.Stakeholders(), a.InitialShares)
	if err != nil {
		return ProjectionScenario{}, fmt.Errorf("dilution: %w", err)
	}
	last := ledger[len(ledger)-1]

	base := last.Round.Valuation
	exits := make([]float64, len(a.ExitMultiples))
	for i, m := range a.ExitMultiples {
		exits[i] = base * m
	}
	outcomes, err := Project(terms, exits, last)
	if err != nil {
		return ProjectionScenario{}, fmt.Errorf("exits: %w", err)
	}
	tiers := a.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	outcomes, err = AssignProbabilities(outcomes, base, a.YearsToExit, tiers)
	if err != nil {
		return ProjectionScenario{}, fmt.Errorf("probabilities: %w", err)
	}

	return ProjectionScenario{
		Name:             gm.Name,
		Description:      fmt.Sprintf("%s case scenario with %gx growth multiple", gm.Name, gm.Multiplier),
		GrowthMultiplier: gm.Multiplier,
		FundingRounds:    rounds,
		Dilution:         ledger,
		ExitOutcomes:     outcomes,
		Summary:          Summarize(outcomes, last, ParticipantName(rounds[0])),
	}, nil
}

// BuildScenarios builds every named scenario concurrently and joins the
// results in input order. A failing scenario is reported in Failures while
// the others are still returned.
func BuildScenarios(ctx context.Context, terms Terms, multipliers []GrowthMultiplier, a Assumptions) ScenarioSet {
	type result struct {
		scenario ProjectionScenario
		err      error
	}
	results := make([]result, len(multipliers))
	var wg sync.WaitGroup
	for i, gm := range multipliers {
		wg.Add(1)
		go func(i int, gm GrowthMultiplier) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			sc, err := BuildScenario(terms, gm, a)
			results[i] = result{scenario: sc, err: err}
		}(i, gm)
	}
	wg.Wait()

	var set ScenarioSet
	for i, r := range results {
		if r.err != nil {
			set.Failures = append(set.Failures, ScenarioFailure{
				Name:  multipliers[i].Name,
				Kind:  KindOf(r.err),
				Error: r.err.Error(),
			})
			continue
		}
		set.Scenarios = append(set.Scenarios, r.scenario)
	}
	return set
}
