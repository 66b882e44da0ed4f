package cli

import (
	"github.com/spf13/cobra"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
)

func (a *app) newBenchmarksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "benchmarks",
		Short: "Print the benchmark table",
		Long: `Benchmarks prints the min/median/max reference ranges for valuation cap
and discount rate by industry and stage. A --benchmarks YAML file overrides
individual ranges of the built-in table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.benchmarks()
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), table)
		},
	}
}

func (a *app) newPercentileCmd() *cobra.Command {
	var withCurve bool
	cmd := &cobra.Command{
		Use:   "percentile",
		Short: "Rank the terms against industry benchmarks",
		Long: `Percentile places the valuation cap and discount rate on the benchmark
range for --industry and --stage and labels each position.

Example:
  safe-model percentile --cap 8000000 --discount 15 --industry hardware --stage seed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			table, err := a.benchmarks()
			if err != nil {
				return err
			}
			industry, stage := a.segment()
			assessment, err := benchmark.Assess(terms, table, industry, stage)
			if err != nil {
				return err
			}
			if !withCurve {
				assessment.ValuationCap.Curve = nil
				assessment.DiscountRate.Curve = nil
			}
			return a.render(cmd.OutOrStdout(), assessment)
		},
	}
	cmd.Flags().BoolVar(&withCurve, "curve", false, "include the bell-curve sample series")
	return cmd
}
