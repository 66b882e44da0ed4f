package benchmark

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

type Metric string

const (
	MetricValuationCap Metric = "valuation_cap"
	MetricDiscountRate Metric = "discount_rate"
)

type Industry string

const (
	IndustrySoftware Industry = "software"
	IndustryHardware Industry = "hardware"
)

type Stage string

const (
	StagePreSeed Stage = "pre_seed"
	StageSeed    Stage = "seed"
	StageSeriesA Stage = "series_a"
)

type Range struct {
	Min    float64 `json:"min" yaml:"min"`
	Median float64 `json:"median" yaml:"median"`
	Max    float64 `json:"max" yaml:"max"`
}

func (r Range) Validate() error {
	if !(r.Min <= r.Median && r.Median <= r.Max) {
		return safe.NewError(safe.KindInvalidInput, "benchmark range requires min <= median <= max, got %v/%v/%v", r.Min, r.Median, r.Max)
	}
	return nil
}

// Table holds reference distributions keyed by metric, industry and stage.
type Table map[Metric]map[Industry]map[Stage]Range

var DefaultTable = Table{
	MetricValuationCap: {
		IndustrySoftware: {
			StagePreSeed: {Min: 2000000, Median: 3500000, Max: 5000000},
			StageSeed:    {Min: 4000000, Median: 6000000, Max: 10000000},
			StageSeriesA: {Min: 8000000, Median: 15000000, Max: 25000000},
		},
		IndustryHardware: {
			StagePreSeed: {Min: 1500000, Median: 3000000, Max: 4500000},
			StageSeed:    {Min: 3500000, Median: 5500000, Max: 9000000},
			StageSeriesA: {Min: 7000000, Median: 12000000, Max: 20000000},
		},
	},
	MetricDiscountRate: {
		IndustrySoftware: {
			StagePreSeed: {Min: 15, Median: 20, Max: 25},
			StageSeed:    {Min: 10, Median: 20, Max: 25},
			StageSeriesA: {Min: 5, Median: 15, Max: 20},
		},
		IndustryHardware: {
			StagePreSeed: {Min: 15, Median: 20, Max: 30},
			StageSeed:    {Min: 10, Median: 20, Max: 25},
			StageSeriesA: {Min: 5, Median: 15, Max: 20},
		},
	},
}

// Lookup returns the range for the key or an invalid input error when the
// table has no entry for it.
func (t Table) Lookup(metric Metric, industry Industry, stage Stage) (Range, error) {
	r, ok := t[metric][industry][stage]
	if !ok {
		return Range{}, safe.NewError(safe.KindInvalidInput, "no benchmark for %s/%s/%s", metric, industry, stage)
	}
	return r, nil
}

func (t Table) Validate() error {
	for m, byIndustry := range t {
		for i, byStage := range byIndustry {
			for s, r := range byStage {
				if err := r.Validate(); err != nil {
					return fmt.Errorf("%s/%s/%s: %w", m, i, s, err)
				}
			}
		}
	}
	return nil
}

// Industries lists the industries present for a metric, sorted.
func (t Table) Industries(metric Metric) []Industry {
	var out []Industry
	for i := range t[metric] {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// LoadTable reads a YAML table from path. Entries in the file replace the
// matching entries of DefaultTable; keys it does not mention keep their
// default ranges.
func LoadTable(path string) (Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmarks: %w", err)
	}
	var overrides Table
	if err := yaml.Unmarshal(blob, &overrides); err != nil {
		return nil, fmt.Errorf("parse benchmarks: %w", err)
	}
	merged := DefaultTable.clone()
	for m, byIndustry := range overrides {
		if merged[m] == nil {
			merged[m] = map[Industry]map[Stage]Range{}
		}
		for i, byStage := range byIndustry {
			if merged[m][i] == nil {
				merged[m][i] = map[Stage]Range{}
			}
			for s, r := range byStage {
				merged[m][i][s] = r
			}
		}
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for m, byIndustry := range t {
		out[m] = make(map[Industry]map[Stage]Range, len(byIndustry))
		for i, byStage := range byIndustry {
			out[m][i] = make(map[Stage]Range, len(byStage))
			for s, r := range byStage {
				out[m][i][s] = r
			}
		}
	}
	return out
}
