package safe

import (
	"fmt"
	"math"
)

const ProbabilityTolerance = 1e-9

// tierTolerance is the relative slack on tier bounds, so an exit at exactly
// base*3 still counts as 3x after the division.
const tierTolerance = 1e-12

// Tier is a probability bucket over exit values expressed as a multiple of
// the last round's valuation. UpTo is inclusive; the last tier is open
// ended when UpTo is +Inf.
type Tier struct {
	Name ExitTier `json:"name" yaml:"name"`
	UpTo float64  `json:"up_to" yaml:"up_to"`
	Mass float64  `json:"mass" yaml:"mass"`
	// TimingFactor scales years-to-exit for outcomes in this tier.
	TimingFactor float64 `json:"timing_factor" yaml:"timing_factor"`
}

func DefaultTiers() []Tier {
	return []Tier{
		{Name: TierDownside, UpTo: 1, Mass: 0.4, TimingFactor: 0.7},
		{Name: TierBase, UpTo: 3, Mass: 0.4, TimingFactor: 1},
		{Name: TierUpside, UpTo: math.Inf(1), Mass: 0.2, TimingFactor: 1.3},
	}
}

// Project computes every stakeholder's payout and return multiple for each
// exit valuation against the cap table of the given step.
func Project(terms Terms, exitValuations []float64, last DilutionStep) ([]ExitOutcome, error) {
	if len(last.Stakeholders) == 0 {
		return nil, invalidInput("dilution step has no stakeholders")
	}
	out := make([]ExitOutcome, 0, len(exitValuations))
	for _, exit := range exitValuations {
		if !finitePositive(exit) {
			return nil, invalidInput("exit valuation must be > 0, got %v", exit)
		}
		per := make(map[string]StakeholderReturn, len(last.Stakeholders))
		for _, s := range last.Stakeholders {
			payout := s.Ownership / 100 * exit
			per[s.Name] = StakeholderReturn{
				Role:             s.Role,
				Shares:           s.InitialShares,
				OwnershipPercent: s.Ownership,
				PayoutValue:      payout,
				ReturnMultiple:   returnMultiple(terms, s, payout),
			}
		}
		out = append(out, ExitOutcome{ExitValue: exit, PerStakeholder: per})
	}
	return out, nil
}

func returnMultiple(terms Terms, s Stakeholder, payout float64) float64 {
	if s.Role != RoleInvestor {
		return 0
	}
	invested := s.Invested
	if invested <= 0 {
		invested = terms.InvestmentAmount
	}
	if invested <= 0 {
		return 0
	}
	return payout / invested
}

// AssignProbabilities buckets outcomes into tiers by their multiple of
// baseValuation and splits each tier's mass evenly over its outcomes. The
// returned outcomes are copies; the probabilities are validated before
// returning.
func AssignProbabilities(outcomes []ExitOutcome, baseValuation, yearsToExit float64, tiers []Tier) ([]ExitOutcome, error) {
	if !finitePositive(baseValuation) {
		return nil, invalidInput("base valuation must be > 0, got %v", baseValuation)
	}
	if len(tiers) == 0 {
		return nil, invalidInput("at least one tier is required")
	}
	out := make([]ExitOutcome, len(outcomes))
	members := make([]int, len(tiers))
	tierOf := make([]int, len(outcomes))
	for i, o := range outcomes {
		o.Multiple = o.ExitValue / baseValuation
		idx := tierIndex(tiers, o.Multiple)
		if idx < 0 {
			return nil, probabilityMass("exit multiple %.4g falls outside every tier", o.Multiple)
		}
		tierOf[i] = idx
		members[idx]++
		out[i] = o
	}
	for i := range out {
		t := tiers[tierOf[i]]
		out[i].Tier = t.Name
		out[i].Probability = t.Mass / float64(members[tierOf[i]])
		out[i].Timing = fmt.Sprintf("Year %d", roundYears(yearsToExit*t.TimingFactor))
	}
	for i, t := range tiers {
		if members[i] == 0 && t.Mass > 0 {
			return nil, probabilityMass("tier %s carries mass %.4g but no exit falls into it", t.Name, t.Mass)
		}
	}
	if err := ValidateProbabilities(out); err != nil {
		return nil, err
	}
	return out, nil
}

// roundYears rounds half up, absorbing float error in products like 5*0.7.
func roundYears(y float64) int {
	return int(math.Floor(y + 0.5 + 1e-9))
}

func tierIndex(tiers []Tier, multiple float64) int {
	for i, t := range tiers {
		if multiple <= t.UpTo*(1+tierTolerance) {
			return i
		}
	}
	return -1
}

// ValidateProbabilities requires each probability in [0,1] and a total of
// 1 within ProbabilityTolerance.
func ValidateProbabilities(outcomes []ExitOutcome) error {
	if len(outcomes) == 0 {
		return probabilityMass("no outcomes to weight")
	}
	sum := 0.0
	for _, o := range outcomes {
		if math.IsNaN(o.Probability) || o.Probability < 0 || o.Probability > 1 {
			return probabilityMass("probability %v outside [0,1]", o.Probability)
		}
		sum += o.Probability
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return probabilityMass("probabilities sum to %.12f", sum)
	}
	return nil
}

// Summarize computes the probability-weighted exit value, the named
// investor's weighted return multiple and the founders' final ownership.
func Summarize(outcomes []ExitOutcome, last DilutionStep, investor string) ScenarioSummary {
	var sum ScenarioSummary
	for _, o := range outcomes {
		sum.ExpectedValue += o.Probability * o.ExitValue
		if r, ok := o.PerStakeholder[investor]; ok {
			sum.InvestorMultiple += o.Probability * r.ReturnMultiple
		}
	}
	for _, s := range last.Stakeholders {
		if s.Role == RoleFounder {
			sum.FounderOwnership += s.Ownership
		}
	}
	return sum
}

type ExitTableRow struct {
	ExitValue        float64          `json:"exit_value" yaml:"exit_value"`
	OwnershipPercent float64          `json:"ownership_percent" yaml:"ownership_percent"`
	Method           ConversionMethod `json:"method" yaml:"method"`
	InvestorValue    float64          `json:"investor_value" yaml:"investor_value"`
	Multiple         float64          `json:"multiple" yaml:"multiple"`
}

// ExitTable converts the SAFE directly against each exit value from..to
// (inclusive) in the given step and reports the investor's take.
func ExitTable(terms Terms, from, to, step float64) ([]ExitTableRow, error) {
	if !finitePositive(from) || !finitePositive(step) || to < from {
		return nil, invalidInput("exit table range [%v,%v] step %v is invalid", from, to, step)
	}
	var rows []ExitTableRow
	for i := 0; ; i++ {
		exit := from + float64(i)*step
		if exit > to*(1+ownershipTolerance) {
			break
		}
		c, err := Convert(terms, exit)
		if err != nil {
			return nil, err
		}
		value := c.Ownership * exit
		rows = append(rows, ExitTableRow{
			ExitValue:        exit,
			OwnershipPercent: c.OwnershipPercent(),
			Method:           c.Method,
			InvestorValue:    value,
			Multiple:         value / terms.InvestmentAmount,
		})
	}
	return rows, nil
}
