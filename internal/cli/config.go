package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

// settings is the typed view of the effective configuration. Flag-backed
// keys come back from viper as strings, so they are read through the typed
// getters before printing.
type settings struct {
	Terms          safe.Terms `yaml:"terms"`
	Industry       string     `yaml:"industry"`
	Stage          string     `yaml:"stage"`
	BenchmarksFile string     `yaml:"benchmarks_file"`
	Output         string     `yaml:"output"`
}

func (a *app) settings() settings {
	return settings{
		Terms:          a.rawTerms(),
		Industry:       a.v.GetString(keyIndustry),
		Stage:          a.v.GetString(keyStage),
		BenchmarksFile: a.v.GetString(keyBenchmarksFile),
		Output:         a.v.GetString(keyOutput),
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect safe-model configuration",
		Long: `Inspect safe-model configuration.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (SAFE_MODEL_*, e.g. SAFE_MODEL_TERMS_VALUATION_CAP)
3. Config file (~/.safe-model/config.yaml)
4. Defaults`,
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", used)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (using defaults)\n\n")
			}
			out, err := yaml.Marshal(a.settings())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return configCmd
}
