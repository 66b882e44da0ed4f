package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

const dateLayout = "2006-01-02"

func (a *app) startDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return a.now().UTC().Truncate(24 * time.Hour), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("start date must be YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func (a *app) newConvertCmd() *cobra.Command {
	var eventValuation float64
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the SAFE at a priced-round valuation",
		Long: `Convert computes the ownership the SAFE converts into at a priced round,
taking the better of the valuation cap and the discounted round price.

Example:
  safe-model convert --cap 5000000 --discount 20 --amount 250000 --event-valuation 20000000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			c, err := safe.Convert(terms, eventValuation)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().Float64Var(&eventValuation, "event-valuation", 0, "pre-money valuation of the priced round")
	_ = cmd.MarkFlagRequired("event-valuation")
	return cmd
}

func (a *app) newDilutionCmd() *cobra.Command {
	var (
		roundsFile    string
		initialShares float64
		start         string
		growth        float64
	)
	cmd := &cobra.Command{
		Use:   "dilution",
		Short: "Fold funding rounds over the cap table",
		Long: `Dilution prints one ledger step per funding round. Rounds come from a
YAML or JSON file (a list of name/kind/amount/valuation/date entries) or,
without --rounds, from the standard SAFE, Series A, Series B sequence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			startDate, err := a.startDate(start)
			if err != nil {
				return err
			}
			rounds := safe.ScenarioRounds(terms, growth, startDate)
			if roundsFile != "" {
				if rounds, err = loadRounds(roundsFile); err != nil {
					return err
				}
			}
			assumptions := safe.DefaultAssumptions(startDate)
			assumptions.InitialShares = initialShares
			ledger, err := safe.Simulate(terms, rounds, assumptions.Stakeholders(), initialShares)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), ledger)
		},
	}
	cmd.Flags().StringVar(&roundsFile, "rounds", "", "YAML or JSON file listing funding rounds")
	cmd.Flags().Float64Var(&initialShares, "initial-shares", 10_000_000, "shares outstanding before the first round")
	cmd.Flags().StringVar(&start, "start-date", "", "date of the SAFE round (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(&growth, "growth", 1.0, "growth multiplier for the generated rounds")
	return cmd
}

// loadRounds reads a list of funding rounds; YAML is a superset of JSON so
// one decoder handles both.
func loadRounds(path string) ([]safe.FundingRound, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rounds: %w", err)
	}
	var rounds []safe.FundingRound
	if err := yaml.Unmarshal(blob, &rounds); err != nil {
		return nil, fmt.Errorf("parse rounds: %w", err)
	}
	return rounds, nil
}

func (a *app) newExitTableCmd() *cobra.Command {
	var from, to, step float64
	cmd := &cobra.Command{
		Use:   "exit-table",
		Short: "Investor take across a range of exit values",
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			rows, err := safe.ExitTable(terms, from, to, step)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().Float64Var(&from, "from", 10_000_000, "first exit value")
	cmd.Flags().Float64Var(&to, "to", 100_000_000, "last exit value")
	cmd.Flags().Float64Var(&step, "step", 10_000_000, "exit value increment")
	return cmd
}

func (a *app) newScenariosCmd() *cobra.Command {
	var (
		multipliers   []string
		start         string
		yearsToExit   float64
		exitMultiples []float64
	)
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Build the named growth scenarios",
		Long: `Scenarios builds one projection per growth multiplier: the SAFE round,
a Series A and a Series B, then probability-weighted exits.

Example:
  safe-model scenarios --multiplier Bear=0.5 --multiplier Bull=2 --output yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := a.terms()
			if err != nil {
				return err
			}
			set, err := a.buildScenarios(cmd, terms, multipliers, start, yearsToExit, exitMultiples)
			if err != nil {
				return err
			}
			if err := a.render(cmd.OutOrStdout(), set); err != nil {
				return err
			}
			if len(set.Scenarios) == 0 && len(set.Failures) > 0 {
				return fmt.Errorf("all %d scenarios failed", len(set.Failures))
			}
			return nil
		},
	}
	addScenarioFlags(cmd, &multipliers, &start, &yearsToExit, &exitMultiples)
	return cmd
}

func addScenarioFlags(cmd *cobra.Command, multipliers *[]string, start *string, yearsToExit *float64, exitMultiples *[]float64) {
	defaults := safe.DefaultAssumptions(time.Time{})
	cmd.Flags().StringArrayVar(multipliers, "multiplier", nil, "growth scenario as Name=multiple (repeatable, default Conservative/Base/Optimistic)")
	cmd.Flags().StringVar(start, "start-date", "", "date of the SAFE round (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(yearsToExit, "years-to-exit", defaults.YearsToExit, "base years until exit")
	cmd.Flags().Float64SliceVar(exitMultiples, "exit-multiples", defaults.ExitMultiples, "exit values as multiples of the last round valuation")
}

func (a *app) buildScenarios(cmd *cobra.Command, terms safe.Terms, rawMultipliers []string, start string, yearsToExit float64, exitMultiples []float64) (safe.ScenarioSet, error) {
	multipliers, err := parseMultipliers(rawMultipliers)
	if err != nil {
		return safe.ScenarioSet{}, err
	}
	startDate, err := a.startDate(start)
	if err != nil {
		return safe.ScenarioSet{}, err
	}
	assumptions := safe.DefaultAssumptions(startDate)
	assumptions.YearsToExit = yearsToExit
	assumptions.ExitMultiples = exitMultiples
	set := safe.BuildScenarios(cmd.Context(), terms, multipliers, assumptions)
	if a.verbose {
		for _, f := range set.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "scenario %s failed: %s\n", f.Name, f.Error)
		}
	}
	return set, nil
}

func parseMultipliers(raw []string) ([]safe.GrowthMultiplier, error) {
	if len(raw) == 0 {
		return safe.DefaultMultipliers(), nil
	}
	out := make([]safe.GrowthMultiplier, 0, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("multiplier %q must look like Name=1.5", item)
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("multiplier %q: %w", item, err)
		}
		out = append(out, safe.GrowthMultiplier{Name: name, Multiplier: m})
	}
	return out, nil
}
