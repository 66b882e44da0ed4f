package safe

import (
	"math"
	"sort"
)

const ownershipTolerance = 1e-9

// ParticipantName is the stakeholder name given to the holders of the
// shares issued in a round.
func ParticipantName(r FundingRound) string {
	if r.Kind == RoundSAFE {
		return r.Name + " Investor"
	}
	return r.Name + " Investors"
}

// Simulate folds the rounds in chronological order over the initial cap
// table and returns one DilutionStep per round. Existing holders keep their
// share counts; each round's new shares go to a participant stakeholder.
// On any validation failure no ledger is returned.
func Simulate(terms Terms, rounds []FundingRound, initial []Stakeholder, initialShares float64) ([]DilutionStep, error) {
	if !finitePositive(initialShares) {
		return nil, invalidInput("initial share count must be > 0, got %v", initialShares)
	}
	attributed := 0.0
	for _, s := range initial {
		if s.InitialShares < 0 || math.IsNaN(s.InitialShares) {
			return nil, invalidInput("stakeholder %q has negative shares", s.Name)
		}
		attributed += s.InitialShares
	}
	if attributed > initialShares*(1+ownershipTolerance) {
		return nil, invalidInput("stakeholders hold %v shares, more than the %v outstanding", attributed, initialShares)
	}

	ordered := make([]FundingRound, len(rounds))
	copy(ordered, rounds)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	for _, r := range ordered {
		if err := validateRound(r); err != nil {
			return nil, err
		}
	}

	holders := make([]Stakeholder, len(initial))
	copy(holders, initial)
	for i := range holders {
		holders[i].Ownership = holders[i].InitialShares / initialShares * 100
	}

	shares := initialShares
	ledger := make([]DilutionStep, 0, len(ordered))
	for _, r := range ordered {
		newShares, invested, err := issuance(terms, r, shares)
		if err != nil {
			return nil, err
		}
		after := shares + newShares
		holders = append(holders, Stakeholder{
			Name:          ParticipantName(r),
			Role:          RoleInvestor,
			InitialShares: newShares,
			Invested:      invested,
		})

		snapshot := make([]Stakeholder, len(holders))
		total := 0.0
		for i, h := range holders {
			h.Ownership = h.InitialShares / after * 100
			total += h.Ownership
			snapshot[i] = h
		}
		if total > 100*(1+ownershipTolerance) {
			return nil, invalidRound("round %q attributes %.12f%% ownership", r.Name, total)
		}
		holders = snapshot

		price := invested / newShares
		ledger = append(ledger, DilutionStep{
			Round:              r,
			Stakeholders:       snapshot,
			TotalSharesBefore:  shares,
			NewShares:          newShares,
			TotalSharesAfter:   after,
			PostMoneyValuation: price * after,
			PricePerShare:      price,
		})
		shares = after
	}
	return ledger, nil
}

func validateRound(r FundingRound) error {
	if r.Name == "" {
		return invalidRound("round name is required")
	}
	if r.Kind != RoundSAFE && r.Kind != RoundPricedEquity {
		return invalidRound("round %q has unknown kind %q", r.Name, r.Kind)
	}
	if !finitePositive(r.Amount) {
		return invalidRound("round %q amount must be > 0, got %v", r.Name, r.Amount)
	}
	if !finitePositive(r.Valuation) {
		return invalidRound("round %q valuation must be > 0, got %v", r.Name, r.Valuation)
	}
	return nil
}

// issuance returns the shares a round issues against the running total and
// the capital behind them.
func issuance(terms Terms, r FundingRound, sharesBefore float64) (float64, float64, error) {
	if r.Kind == RoundPricedEquity {
		return r.Amount / r.Valuation * sharesBefore, r.Amount, nil
	}
	// The converted fraction is measured against the post-round total:
	// n / (S + n) = f  =>  n = f*S / (1-f).
	f, err := ConvertFraction(terms, r.Valuation)
	if err != nil {
		return 0, 0, err
	}
	return f * sharesBefore / (1 - f), terms.InvestmentAmount, nil
}
