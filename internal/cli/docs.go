package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/report"
)

type extractOutput struct {
	Document   extract.DocumentText `json:"document" yaml:"document"`
	Extraction extract.Extraction   `json:"extraction" yaml:"extraction"`
	Warning    string               `json:"warning,omitempty" yaml:"warning,omitempty"`
}

func (a *app) newExtractCmd() *cobra.Command {
	var (
		useLLM   bool
		showText bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Read SAFE terms from a PDF or text file",
		Long: `Extract reads a term sheet and reports the terms it states. Anything the
document does not mention falls back to the defaults (cap $5,000,000,
20% discount, $250,000 investment).

With --llm and ANTHROPIC_API_KEY set the document is read by a model;
otherwise keyword and pattern matching is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := extract.DocumentFromFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := extractOutput{Document: doc}
			if useLLM {
				caller, err := extract.NewAnthropicCallerFromEnv()
				if err != nil {
					out.Warning = err.Error()
					out.Extraction = extract.ParseTerms(doc.Text)
				} else if out.Extraction, err = extract.NewLLMExtractor(caller).Extract(cmd.Context(), doc.Text); err != nil {
					out.Warning = err.Error()
				}
			} else {
				out.Extraction = extract.ParseTerms(doc.Text)
			}
			if !showText {
				out.Document.Text = ""
			}
			return a.render(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&useLLM, "llm", false, "use the Anthropic model for extraction")
	cmd.Flags().BoolVar(&showText, "text", false, "include the extracted document text")
	return cmd
}

func (a *app) newReportCmd() *cobra.Command {
	var (
		mdPath        string
		pdfPath       string
		paper         string
		multipliers   []string
		start         string
		yearsToExit   float64
		exitMultiples []float64
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the scenario report as markdown or PDF",
		Long: `Report builds the scenarios for the current terms and renders the terms,
benchmark position and every scenario ledger. Markdown goes to stdout unless
--md is given; --pdf renders through a local Chromium.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pageOpts, err := report.PaperOptions(paper)
			if err != nil {
				return err
			}
			terms, err := a.terms()
			if err != nil {
				return err
			}
			set, err := a.buildScenarios(cmd, terms, multipliers, start, yearsToExit, exitMultiples)
			if err != nil {
				return err
			}
			table, err := a.benchmarks()
			if err != nil {
				return err
			}
			in := report.Input{Terms: terms, Scenarios: set, GeneratedAt: a.now()}
			industry, stage := a.segment()
			if assessment, err := benchmark.Assess(terms, table, industry, stage); err == nil {
				in.Assessment = &assessment
			} else if a.verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "benchmark position skipped: %v\n", err)
			}
			md := report.BuildMarkdown(in)

			if mdPath == "" && pdfPath == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			if mdPath != "" {
				if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
					return fmt.Errorf("write markdown: %w", err)
				}
			}
			if pdfPath != "" {
				pdf, err := report.NewChromiumPDFRenderer(pageOpts).Render(cmd.Context(), md)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
					return fmt.Errorf("write pdf: %w", err)
				}
			}
			if a.verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "report written at %s\n", a.now().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mdPath, "md", "", "write markdown to this path")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "write PDF to this path")
	cmd.Flags().StringVar(&paper, "paper", "letter", "PDF paper size: letter or a4")
	addScenarioFlags(cmd, &multipliers, &start, &yearsToExit, &exitMultiples)
	return cmd
}
