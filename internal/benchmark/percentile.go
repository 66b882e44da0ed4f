package benchmark

import (
	"math"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

const (
	LabelBelowAverage = "below average"
	LabelAverage      = "average"
	LabelAboveAverage = "above average"

	lowerThreshold = 40
	upperThreshold = 60

	DefaultCurvePoints = 41
)

type Rank struct {
	Percentile float64 `json:"percentile" yaml:"percentile"`
	Label      string  `json:"label" yaml:"label"`
}

// Percentile places value on the piecewise-linear scale min=0, median=50,
// max=100. Values outside the range clamp to 0 or 100. When the half of
// the range holding value has zero width, that half's outer boundary rank
// (0 below the median, 100 above it) is returned.
func Percentile(value float64, r Range) (Rank, error) {
	if err := r.Validate(); err != nil {
		return Rank{}, err
	}
	if math.IsNaN(value) {
		return Rank{}, safe.NewError(safe.KindInvalidInput, "value is NaN")
	}
	var p float64
	if value <= r.Median {
		if r.Median == r.Min {
			p = 0
		} else {
			p = math.Max(0, (value-r.Min)/(r.Median-r.Min)*50)
		}
	} else {
		if r.Max == r.Median {
			p = 100
		} else {
			p = math.Min(100, 50+(value-r.Median)/(r.Max-r.Median)*50)
		}
	}
	return Rank{Percentile: p, Label: Label(p)}, nil
}

func Label(percentile float64) string {
	switch {
	case percentile < lowerThreshold:
		return LabelBelowAverage
	case percentile > upperThreshold:
		return LabelAboveAverage
	default:
		return LabelAverage
	}
}

type CurvePoint struct {
	Value      float64 `json:"value" yaml:"value"`
	Frequency  float64 `json:"frequency" yaml:"frequency"`
	IsSelected bool    `json:"is_selected" yaml:"is_selected"`
}

// BellCurve samples n evenly spaced points over [min,max] with a Gaussian
// height centred on the median and sigma (max-min)/4. The point within
// half a step of selected is replaced by selected at its own curve height.
func BellCurve(r Range, n int, selected float64) ([]CurvePoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultCurvePoints
	}
	width := r.Max - r.Min
	if width == 0 || n == 1 {
		return []CurvePoint{{Value: r.Median, Frequency: 1, IsSelected: selected == r.Median}}, nil
	}
	sigma := width / 4
	height := func(x float64) float64 {
		d := x - r.Median
		return math.Exp(-(d * d) / (2 * sigma * sigma))
	}
	step := width / float64(n-1)
	points := make([]CurvePoint, n)
	selectedAt := -1
	for i := range points {
		x := r.Min + float64(i)*step
		if i == n-1 {
			x = r.Max
		}
		points[i] = CurvePoint{Value: x, Frequency: height(x)}
		if selectedAt < 0 && math.Abs(x-selected) < step/2 {
			selectedAt = i
		}
	}
	if selectedAt >= 0 {
		points[selectedAt] = CurvePoint{Value: selected, Frequency: height(selected), IsSelected: true}
	}
	return points, nil
}

type Assessment struct {
	Industry     Industry     `json:"industry" yaml:"industry"`
	Stage        Stage        `json:"stage" yaml:"stage"`
	ValuationCap MetricReport `json:"valuation_cap" yaml:"valuation_cap"`
	DiscountRate MetricReport `json:"discount_rate" yaml:"discount_rate"`
}

type MetricReport struct {
	Value float64      `json:"value" yaml:"value"`
	Range Range        `json:"range" yaml:"range"`
	Rank  Rank         `json:"rank" yaml:"rank"`
	Curve []CurvePoint `json:"curve" yaml:"curve"`
}

// Assess ranks the terms' valuation cap and discount rate against the
// table's ranges for the given industry and stage.
func Assess(terms safe.Terms, t Table, industry Industry, stage Stage) (Assessment, error) {
	capReport, err := report(t, MetricValuationCap, industry, stage, terms.ValuationCap)
	if err != nil {
		return Assessment{}, err
	}
	discReport, err := report(t, MetricDiscountRate, industry, stage, terms.DiscountRate)
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{Industry: industry, Stage: stage, ValuationCap: capReport, DiscountRate: discReport}, nil
}

func report(t Table, m Metric, industry Industry, stage Stage, value float64) (MetricReport, error) {
	r, err := t.Lookup(m, industry, stage)
	if err != nil {
		return MetricReport{}, err
	}
	rank, err := Percentile(value, r)
	if err != nil {
		return MetricReport{}, err
	}
	curve, err := BellCurve(r, DefaultCurvePoints, value)
	if err != nil {
		return MetricReport{}, err
	}
	return MetricReport{Value: value, Range: r, Rank: rank, Curve: curve}, nil
}
