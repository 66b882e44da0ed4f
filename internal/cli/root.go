package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/safe"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const (
	keyValuationCap     = "terms.valuation_cap"
	keyDiscountRate     = "terms.discount_rate"
	keyInvestmentAmount = "terms.investment_amount"
	keyProRata          = "terms.pro_rata_rights"
	keyMFN              = "terms.mfn_provision"
	keyBoardObserver    = "terms.board_observer"
	keyIndustry         = "industry"
	keyStage            = "stage"
	keyBenchmarksFile   = "benchmarks_file"
	keyOutput           = "output"
)

// app carries the per-invocation state shared by subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	now     func() time.Time
}

// Execute runs the safe-model command line.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), now: func() time.Time { return time.Now().UTC() }}
	root := &cobra.Command{
		Use:   "safe-model",
		Short: "SAFE Negotiator - model SAFE conversion, dilution and exits",
		Long: `safe-model projects how a SAFE (Simple Agreement for Future Equity)
converts to equity, dilutes the cap table across later rounds and pays out
at exit, and ranks the terms against industry benchmarks.

Terms come from flags, SAFE_MODEL_* environment variables or the config
file, in that order of precedence.

` + safe.Disclaimer,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.safe-model/config.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.StringP("output", "o", "json", "output format (json, yaml)")
	pf.Float64("cap", 0, "valuation cap in dollars")
	pf.Float64("discount", 0, "discount rate in percent")
	pf.Float64("amount", 0, "investment amount in dollars")
	pf.Bool("pro-rata", false, "investor has pro rata rights")
	pf.Bool("mfn", false, "most favored nation provision")
	pf.Bool("board-observer", false, "investor has a board observer seat")
	pf.String("industry", string(benchmark.IndustrySoftware), "benchmark industry (software, hardware)")
	pf.String("stage", string(benchmark.StageSeed), "benchmark stage (pre_seed, seed, series_a)")
	pf.String("benchmarks", "", "YAML file overriding the built-in benchmark table")

	for key, flag := range map[string]string{
		keyOutput:           "output",
		keyValuationCap:     "cap",
		keyDiscountRate:     "discount",
		keyInvestmentAmount: "amount",
		keyProRata:          "pro-rata",
		keyMFN:              "mfn",
		keyBoardObserver:    "board-observer",
		keyIndustry:         "industry",
		keyStage:            "stage",
		keyBenchmarksFile:   "benchmarks",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}
	defaults := extract.Defaults()
	a.v.SetDefault(keyValuationCap, defaults.ValuationCap)
	a.v.SetDefault(keyDiscountRate, defaults.DiscountRate)
	a.v.SetDefault(keyInvestmentAmount, defaults.InvestmentAmount)

	root.AddCommand(
		a.newVersionCmd(),
		a.newConfigCmd(),
		a.newConvertCmd(),
		a.newDilutionCmd(),
		a.newExitTableCmd(),
		a.newScenariosCmd(),
		a.newBenchmarksCmd(),
		a.newPercentileCmd(),
		a.newExtractCmd(),
		a.newReportCmd(),
	)
	return root
}

// initConfig reads in the config file and SAFE_MODEL_* variables.
func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".safe-model"))
		}
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}
	a.v.SetEnvPrefix("SAFE_MODEL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	} else if a.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", a.v.ConfigFileUsed())
	}
	return nil
}

// terms assembles the negotiated terms from flags, env and config.
func (a *app) terms() (safe.Terms, error) {
	t := a.rawTerms()
	if err := t.Validate(); err != nil {
		return safe.Terms{}, err
	}
	return t, nil
}

// rawTerms reads the term keys without validating them.
func (a *app) rawTerms() safe.Terms {
	return safe.Terms{
		ValuationCap:     a.v.GetFloat64(keyValuationCap),
		DiscountRate:     a.v.GetFloat64(keyDiscountRate),
		InvestmentAmount: a.v.GetFloat64(keyInvestmentAmount),
		ProRataRights:    a.v.GetBool(keyProRata),
		MFNProvision:     a.v.GetBool(keyMFN),
		BoardObserver:    a.v.GetBool(keyBoardObserver),
	}
}

func (a *app) benchmarks() (benchmark.Table, error) {
	path := strings.TrimSpace(a.v.GetString(keyBenchmarksFile))
	if path == "" {
		return benchmark.DefaultTable, nil
	}
	return benchmark.LoadTable(path)
}

func (a *app) segment() (benchmark.Industry, benchmark.Stage) {
	return benchmark.Industry(strings.ToLower(a.v.GetString(keyIndustry))),
		benchmark.Stage(strings.ToLower(a.v.GetString(keyStage)))
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "safe-model %s\n", Version)
		},
	}
}
