package safe

import "time"

const Disclaimer = "This is an illustrative SAFE model, not legal, tax or investment advice. " +
	"Projections depend entirely on the assumed rounds and exit values."

type Terms struct {
	ValuationCap     float64 `json:"valuation_cap" yaml:"valuation_cap"`
	DiscountRate     float64 `json:"discount_rate" yaml:"discount_rate"`
	ProRataRights    bool    `json:"pro_rata_rights" yaml:"pro_rata_rights"`
	MFNProvision     bool    `json:"mfn_provision" yaml:"mfn_provision"`
	BoardObserver    bool    `json:"board_observer" yaml:"board_observer"`
	InvestmentAmount float64 `json:"investment_amount" yaml:"investment_amount"`
}

type RoundKind string

const (
	RoundSAFE         RoundKind = "SAFE"
	RoundPricedEquity RoundKind = "PRICED_EQUITY"
)

type FundingRound struct {
	Name      string    `json:"name" yaml:"name"`
	Kind      RoundKind `json:"kind" yaml:"kind"`
	Amount    float64   `json:"amount" yaml:"amount"`
	Valuation float64   `json:"valuation" yaml:"valuation"`
	Date      time.Time `json:"date" yaml:"date"`
}

type Role string

const (
	RoleFounder      Role = "founder"
	RoleInvestor     Role = "investor"
	RoleEmployeePool Role = "employeePool"
)

type Stakeholder struct {
	Name          string  `json:"name" yaml:"name"`
	Role          Role    `json:"role" yaml:"role"`
	InitialShares float64 `json:"initial_shares" yaml:"initial_shares"`
	Invested      float64 `json:"invested,omitempty" yaml:"invested,omitempty"`
	Ownership     float64 `json:"ownership" yaml:"ownership"`
}

type DilutionStep struct {
	Round              FundingRound  `json:"round" yaml:"round"`
	Stakeholders       []Stakeholder `json:"stakeholders" yaml:"stakeholders"`
	TotalSharesBefore  float64       `json:"total_shares_before" yaml:"total_shares_before"`
	NewShares          float64       `json:"new_shares" yaml:"new_shares"`
	TotalSharesAfter   float64       `json:"total_shares_after" yaml:"total_shares_after"`
	PostMoneyValuation float64       `json:"post_money_valuation" yaml:"post_money_valuation"`
	PricePerShare      float64       `json:"price_per_share" yaml:"price_per_share"`
}

type ExitTier string

const (
	TierDownside ExitTier = "downside"
	TierBase     ExitTier = "base"
	TierUpside   ExitTier = "upside"
)

type StakeholderReturn struct {
	Role             Role    `json:"role" yaml:"role"`
	Shares           float64 `json:"shares" yaml:"shares"`
	OwnershipPercent float64 `json:"ownership_percent" yaml:"ownership_percent"`
	PayoutValue      float64 `json:"payout_value" yaml:"payout_value"`
	ReturnMultiple   float64 `json:"return_multiple" yaml:"return_multiple"`
}

type ExitOutcome struct {
	ExitValue      float64                      `json:"exit_value" yaml:"exit_value"`
	Multiple       float64                      `json:"multiple_of_last_valuation,omitempty" yaml:"multiple_of_last_valuation,omitempty"`
	Tier           ExitTier                     `json:"tier,omitempty" yaml:"tier,omitempty"`
	Timing         string                       `json:"timing,omitempty" yaml:"timing,omitempty"`
	Probability    float64                      `json:"probability" yaml:"probability"`
	PerStakeholder map[string]StakeholderReturn `json:"per_stakeholder" yaml:"per_stakeholder"`
}

type ScenarioSummary struct {
	ExpectedValue    float64 `json:"expected_value" yaml:"expected_value"`
	FounderOwnership float64 `json:"founder_ownership" yaml:"founder_ownership"`
	InvestorMultiple float64 `json:"investor_multiple" yaml:"investor_multiple"`
}

type ProjectionScenario struct {
	Name             string          `json:"name" yaml:"name"`
	Description      string          `json:"description" yaml:"description"`
	GrowthMultiplier float64         `json:"growth_multiplier" yaml:"growth_multiplier"`
	FundingRounds    []FundingRound  `json:"funding_rounds" yaml:"funding_rounds"`
	Dilution         []DilutionStep  `json:"dilution" yaml:"dilution"`
	ExitOutcomes     []ExitOutcome   `json:"exit_outcomes" yaml:"exit_outcomes"`
	Summary          ScenarioSummary `json:"summary" yaml:"summary"`
}
