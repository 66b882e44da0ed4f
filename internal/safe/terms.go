package safe

import "math"

// Validate checks the Terms invariants: positive cap and investment and a
// discount within [0,100].
func (t Terms) Validate() error {
	if !finitePositive(t.ValuationCap) {
		return invalidInput("valuation cap must be > 0, got %v", t.ValuationCap)
	}
	if !finitePositive(t.InvestmentAmount) {
		return invalidInput("investment amount must be > 0, got %v", t.InvestmentAmount)
	}
	if math.IsNaN(t.DiscountRate) || t.DiscountRate < 0 || t.DiscountRate > 100 {
		return invalidInput("discount rate must be within [0,100], got %v", t.DiscountRate)
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
