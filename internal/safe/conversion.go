package safe

type ConversionMethod string

const (
	MethodCap      ConversionMethod = "cap"
	MethodDiscount ConversionMethod = "discount"
)

type Conversion struct {
	EventValuation     float64          `json:"event_valuation" yaml:"event_valuation"`
	CapOwnership       float64          `json:"cap_ownership" yaml:"cap_ownership"`
	DiscountOwnership  float64          `json:"discount_ownership" yaml:"discount_ownership"`
	Ownership          float64          `json:"ownership" yaml:"ownership"`
	Method             ConversionMethod `json:"method" yaml:"method"`
	EffectiveValuation float64          `json:"effective_valuation" yaml:"effective_valuation"`
}

// OwnershipPercent is Ownership expressed on a 0-100 scale.
func (c Conversion) OwnershipPercent() float64 { return c.Ownership * 100 }

// Convert computes the ownership fraction a SAFE converts into at an event
// with the given pre-money valuation. The holder receives the better of the
// cap price and the discounted event price; on a tie the cap branch is
// reported.
func Convert(terms Terms, eventValuation float64) (Conversion, error) {
	if err := terms.Validate(); err != nil {
		return Conversion{}, err
	}
	if !finitePositive(eventValuation) {
		return Conversion{}, invalidInput("event valuation must be > 0, got %v", eventValuation)
	}
	discounted := eventValuation * (1 - terms.DiscountRate/100)
	if discounted <= 0 {
		return Conversion{}, invalidInput("discount rate %v leaves no conversion price", terms.DiscountRate)
	}

	c := Conversion{
		EventValuation:    eventValuation,
		CapOwnership:      terms.InvestmentAmount / terms.ValuationCap,
		DiscountOwnership: terms.InvestmentAmount / discounted,
	}
	if c.CapOwnership >= c.DiscountOwnership {
		c.Ownership = c.CapOwnership
		c.Method = MethodCap
		c.EffectiveValuation = terms.ValuationCap
	} else {
		c.Ownership = c.DiscountOwnership
		c.Method = MethodDiscount
		c.EffectiveValuation = discounted
	}
	if c.Ownership >= 1 {
		return Conversion{}, invalidInput("investment %v meets or exceeds effective valuation %v", terms.InvestmentAmount, c.EffectiveValuation)
	}
	return c, nil
}

// ConvertFraction returns only the converted ownership fraction.
func ConvertFraction(terms Terms, eventValuation float64) (float64, error) {
	c, err := Convert(terms, eventValuation)
	if err != nil {
		return 0, err
	}
	return c.Ownership, nil
}
