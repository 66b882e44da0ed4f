package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

const (
	DefaultValuationCap     = 5000000
	DefaultDiscountRate     = 20
	DefaultInvestmentAmount = 250000
)

var (
	capPattern         = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s*(million|mm|m)?\s*(?:(?:post|pre)-money\s+)?(?:valuation\s+)?cap\b`)
	discountPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s?%\s*discount`)
	discountOfPattern  = regexp.MustCompile(`(?i)discount\s+(?:rate\s+)?(?:of\s+)?(\d+(?:\.\d+)?)\s?%`)
	amountLabelPattern = regexp.MustCompile(`(?i)(?:purchase|investment)\s+amount[^$]{0,40}\$\s?(\d[\d,]*(?:\.\d+)?)\s*(thousand|million|k|m)?\b`)
	dollarPattern      = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s*(thousand|million|mm|k|m)?\b`)
	mfnPattern         = regexp.MustCompile(`(?i)most\s+favou?red\s+nation|\bmfn\b`)
)

// Partial holds whatever a collaborator could read from a document. Nil
// fields were not found.
type Partial struct {
	ValuationCap     *float64 `json:"valuation_cap,omitempty"`
	DiscountRate     *float64 `json:"discount_rate,omitempty"`
	InvestmentAmount *float64 `json:"investment_amount,omitempty"`
	ProRataRights    *bool    `json:"pro_rata_rights,omitempty"`
	MFNProvision     *bool    `json:"mfn_provision,omitempty"`
	BoardObserver    *bool    `json:"board_observer,omitempty"`
}

type Extraction struct {
	Partial   Partial    `json:"partial"`
	Terms     safe.Terms `json:"terms"`
	Defaulted []string   `json:"defaulted,omitempty"`
	Method    string     `json:"method"`
}

func Defaults() safe.Terms {
	return safe.Terms{
		ValuationCap:     DefaultValuationCap,
		DiscountRate:     DefaultDiscountRate,
		InvestmentAmount: DefaultInvestmentAmount,
	}
}

// Merge lays p over the default terms and reports which fields fell back.
func Merge(p Partial) (safe.Terms, []string) {
	t := Defaults()
	var defaulted []string
	pickFloat := func(name string, v *float64, dst *float64) {
		if v != nil && *v > 0 {
			*dst = *v
			return
		}
		defaulted = append(defaulted, name)
	}
	pickFloat("valuation_cap", p.ValuationCap, &t.ValuationCap)
	// A 100% discount can never convert, so it is treated as unreadable.
	if p.DiscountRate != nil && *p.DiscountRate >= 0 && *p.DiscountRate < 100 {
		t.DiscountRate = *p.DiscountRate
	} else {
		defaulted = append(defaulted, "discount_rate")
	}
	pickFloat("investment_amount", p.InvestmentAmount, &t.InvestmentAmount)
	if p.ProRataRights != nil {
		t.ProRataRights = *p.ProRataRights
	}
	if p.MFNProvision != nil {
		t.MFNProvision = *p.MFNProvision
	}
	if p.BoardObserver != nil {
		t.BoardObserver = *p.BoardObserver
	}
	return t, defaulted
}

// ParseTerms reads SAFE terms out of free text with keyword and pattern
// matching. Rights flags are always decided by keyword presence.
func ParseTerms(text string) Extraction {
	var p Partial
	capSpan := []int(nil)
	if m := capPattern.FindStringSubmatchIndex(text); m != nil {
		if v, ok := money(text[m[2]:m[3]], unit(text, m[4], m[5])); ok {
			p.ValuationCap = &v
			capSpan = m[:2]
		}
	}
	if v, ok := discount(text); ok {
		p.DiscountRate = &v
	}
	if v, ok := investmentAmount(text, capSpan); ok {
		p.InvestmentAmount = &v
	}

	lower := strings.ToLower(text)
	proRata := strings.Contains(lower, "pro rata") || strings.Contains(lower, "pro-rata")
	mfn := mfnPattern.MatchString(text)
	observer := strings.Contains(lower, "board observer")
	p.ProRataRights, p.MFNProvision, p.BoardObserver = &proRata, &mfn, &observer

	terms, defaulted := Merge(p)
	return Extraction{Partial: p, Terms: terms, Defaulted: defaulted, Method: "pattern"}
}

func discount(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{discountPattern, discountOfPattern} {
		if m := re.FindStringSubmatch(text); m != nil {
			d, err := decimal.NewFromString(m[1])
			if err != nil {
				continue
			}
			return d.InexactFloat64(), true
		}
	}
	return 0, false
}

func investmentAmount(text string, capSpan []int) (float64, bool) {
	if m := amountLabelPattern.FindStringSubmatchIndex(text); m != nil {
		if v, ok := money(text[m[2]:m[3]], unit(text, m[4], m[5])); ok {
			return v, true
		}
	}
	for _, m := range dollarPattern.FindAllStringSubmatchIndex(text, -1) {
		if capSpan != nil && m[0] < capSpan[1] && capSpan[0] < m[1] {
			continue
		}
		if v, ok := money(text[m[2]:m[3]], unit(text, m[4], m[5])); ok {
			return v, true
		}
	}
	return 0, false
}

func unit(text string, start, end int) string {
	if start < 0 {
		return ""
	}
	return strings.ToLower(text[start:end])
}

// money parses a comma-grouped dollar figure and applies a magnitude word.
func money(raw, unit string) (float64, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	switch unit {
	case "million", "mm", "m":
		d = d.Mul(decimal.NewFromInt(1000000))
	case "thousand", "k":
		d = d.Mul(decimal.NewFromInt(1000))
	}
	return d.InexactFloat64(), true
}
