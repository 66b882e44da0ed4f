package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/safe"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("safe-model %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func decodeConversion(t *testing.T, out string) safe.Conversion {
	t.Helper()
	var c safe.Conversion
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return c
}

func TestConvertFromFlags(t *testing.T) {
	out := mustRun(t, "convert", "--cap", "5000000", "--discount", "20", "--amount", "250000", "--event-valuation", "20000000")
	c := decodeConversion(t, out)
	if c.Method != safe.MethodCap || c.Ownership != 0.05 {
		t.Fatalf("conversion = %+v", c)
	}
}

func TestConvertRequiresEventValuation(t *testing.T) {
	if _, err := run(t, "convert"); err == nil {
		t.Fatal("expected missing flag error")
	}
}

func TestTermsPrecedence(t *testing.T) {
	cfg := writeFile(t, "config.yaml", "terms:\n  valuation_cap: 8000000\n  discount_rate: 20\n  investment_amount: 250000\n")

	c := decodeConversion(t, mustRun(t, "convert", "--config", cfg, "--event-valuation", "20000000"))
	if c.CapOwnership != 0.03125 {
		t.Fatalf("config cap not used: %+v", c)
	}

	t.Setenv("SAFE_MODEL_TERMS_VALUATION_CAP", "4000000")
	c = decodeConversion(t, mustRun(t, "convert", "--config", cfg, "--event-valuation", "20000000"))
	if c.CapOwnership != 0.0625 {
		t.Fatalf("env cap not used: %+v", c)
	}

	c = decodeConversion(t, mustRun(t, "convert", "--config", cfg, "--cap", "10000000", "--event-valuation", "20000000"))
	if c.CapOwnership != 0.025 {
		t.Fatalf("flag cap not used: %+v", c)
	}
}

func TestDefaultsApplyWithoutConfig(t *testing.T) {
	c := decodeConversion(t, mustRun(t, "convert", "--event-valuation", "20000000"))
	want := extract.DefaultInvestmentAmount / float64(extract.DefaultValuationCap)
	if c.CapOwnership != want {
		t.Fatalf("cap ownership = %v want %v", c.CapOwnership, want)
	}
}

func TestInvalidTermsRejected(t *testing.T) {
	_, err := run(t, "convert", "--cap=-1", "--event-valuation", "1000")
	if err == nil || safe.KindOf(err) != safe.KindInvalidInput {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingExplicitConfigFails(t *testing.T) {
	if _, err := run(t, "version", "--config", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestPercentileYAMLOutput(t *testing.T) {
	out := mustRun(t, "percentile", "--cap", "8000000", "--output", "yaml", "--industry", "hardware", "--stage", "seed")
	for _, want := range []string{"industry: hardware", "stage: seed", "valuation_cap:", "label:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
	if strings.Contains(out, "curve:") && !strings.Contains(out, "curve: []") {
		t.Fatalf("curve should be omitted without --curve:\n%s", out)
	}
	if _, err := run(t, "percentile", "--output", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
	if _, err := run(t, "percentile", "--industry", "biotech"); err == nil {
		t.Fatal("expected unknown industry error")
	}
}

func TestBenchmarksOverrideFile(t *testing.T) {
	path := writeFile(t, "bench.yaml", "valuation_cap:\n  software:\n    seed: {min: 1000000, median: 2000000, max: 3000000}\n")
	out := mustRun(t, "benchmarks", "--benchmarks", path)
	var table map[string]map[string]map[string]map[string]float64
	if err := json.Unmarshal([]byte(out), &table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := table["valuation_cap"]["software"]["seed"]["median"]; got != 2000000 {
		t.Fatalf("override median = %v", got)
	}
	if _, ok := table["discount_rate"]["hardware"]; !ok {
		t.Fatal("defaults should survive the override")
	}
}

func TestExitTableDefaultRange(t *testing.T) {
	out := mustRun(t, "exit-table")
	var rows []safe.ExitTableRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 10 || rows[0].ExitValue != 10000000 || rows[9].ExitValue != 100000000 {
		t.Fatalf("rows = %+v", rows)
	}
	// 250k at a 5M cap beats the 20% discount at every exit in range.
	if rows[0].Method != safe.MethodCap || math.Abs(rows[0].OwnershipPercent-5) > 1e-9 {
		t.Fatalf("first row = %+v", rows[0])
	}
}

func TestScenariosCustomMultiplier(t *testing.T) {
	out := mustRun(t, "scenarios", "--multiplier", "Bear=0.5", "--start-date", "2026-01-15")
	var set safe.ScenarioSet
	if err := json.Unmarshal([]byte(out), &set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(set.Scenarios) != 1 || set.Scenarios[0].Name != "Bear" || len(set.Failures) != 0 {
		t.Fatalf("set = %+v", set)
	}
	if d := set.Scenarios[0].FundingRounds[0].Date.Format(dateLayout); d != "2026-01-15" {
		t.Fatalf("start date = %s", d)
	}
}

func TestScenariosAllFailing(t *testing.T) {
	if _, err := run(t, "scenarios", "--multiplier", "Zero=0", "--start-date", "2026-01-15"); err == nil {
		t.Fatal("expected error when every scenario fails")
	}
	if _, err := run(t, "scenarios", "--multiplier", "Zero"); err == nil {
		t.Fatal("expected malformed multiplier error")
	}
	if _, err := run(t, "scenarios", "--start-date", "15/01/2026"); err == nil {
		t.Fatal("expected start date error")
	}
}

func TestDilutionFromRoundsFile(t *testing.T) {
	path := writeFile(t, "rounds.yaml", `- name: Seed
  kind: SAFE
  amount: 250000
  valuation: 5000000
  date: 2026-01-15T00:00:00Z
- name: Series A
  kind: PRICED_EQUITY
  amount: 2000000
  valuation: 8000000
  date: 2027-01-15T00:00:00Z
`)
	out := mustRun(t, "dilution", "--rounds", path)
	var ledger []safe.DilutionStep
	if err := json.Unmarshal([]byte(out), &ledger); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ledger) != 2 || ledger[1].Round.Name != "Series A" {
		t.Fatalf("ledger = %+v", ledger)
	}
	var total float64
	for _, s := range ledger[1].Stakeholders {
		total += s.Ownership
	}
	// Founders and pool hold 90% of the initial shares.
	if total >= 100 || total <= 90 {
		t.Fatalf("ownership total = %v", total)
	}
	if math.Abs(ledger[1].TotalSharesAfter-ledger[1].TotalSharesBefore-ledger[1].NewShares) > 1e-6 {
		t.Fatalf("share arithmetic off: %+v", ledger[1])
	}
}

func TestExtractTextFile(t *testing.T) {
	path := writeFile(t, "terms.txt", "SAFE: $5,000,000 valuation cap, 20% discount, pro rata rights.")
	out := mustRun(t, "extract", path, "--text")
	var got extractOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Extraction.Terms.ValuationCap != 5000000 || !got.Extraction.Terms.ProRataRights || got.Document.Method != "plain-text" {
		t.Fatalf("got = %+v", got)
	}
	if got.Document.Text == "" {
		t.Fatal("--text should keep document text")
	}
}

func TestExtractLLMWithoutKeyFallsBack(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := writeFile(t, "terms.txt", "A $3M cap and 10% discount.")
	out := mustRun(t, "extract", path, "--llm")
	var got extractOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Warning == "" || got.Extraction.Method != "pattern" || got.Extraction.Terms.ValuationCap != 3000000 {
		t.Fatalf("got = %+v", got)
	}
}

func TestReportMarkdown(t *testing.T) {
	out := mustRun(t, "report", "--start-date", "2026-01-15")
	for _, want := range []string{"# SAFE Scenario Report", "## Benchmark Position", "## Scenario: Base"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q", want)
		}
	}

	path := filepath.Join(t.TempDir(), "report.md")
	if out := mustRun(t, "report", "--md", path, "--start-date", "2026-01-15"); out != "" {
		t.Fatalf("stdout should be empty with --md, got %q", out)
	}
	blob, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(blob), "## Scenario: Optimistic") {
		t.Fatalf("report file err=%v", err)
	}
}

func TestReportRejectsUnknownPaper(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "report.pdf")
	_, err := run(t, "report", "--pdf", pdf, "--paper", "legal")
	if err == nil || !strings.Contains(err.Error(), "unknown paper size") {
		t.Fatalf("expected paper error, got %v", err)
	}
	if _, statErr := os.Stat(pdf); !os.IsNotExist(statErr) {
		t.Fatalf("pdf written despite error: %v", statErr)
	}
}

func TestConfigShowAndVersion(t *testing.T) {
	out := mustRun(t, "config", "show", "--cap", "7000000", "--pro-rata")
	if strings.Contains(out, `"7e+06"`) {
		t.Fatalf("numeric setting printed as a string:\n%s", out)
	}
	var shown struct {
		Terms    map[string]any `yaml:"terms"`
		Industry string         `yaml:"industry"`
		Output   string         `yaml:"output"`
	}
	if err := yaml.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("config show is not YAML: %v\n%s", err, out)
	}
	if got, ok := shown.Terms["valuation_cap"].(float64); !ok || got != 7000000 {
		t.Fatalf("valuation_cap = %#v\n%s", shown.Terms["valuation_cap"], out)
	}
	if got, ok := shown.Terms["discount_rate"].(int); !ok || got != 20 {
		if f, isFloat := shown.Terms["discount_rate"].(float64); !isFloat || f != 20 {
			t.Fatalf("discount_rate = %#v\n%s", shown.Terms["discount_rate"], out)
		}
	}
	if shown.Terms["pro_rata_rights"] != true || shown.Industry != "software" || shown.Output != "json" {
		t.Fatalf("config show:\n%s", out)
	}
	if out := mustRun(t, "version"); !strings.HasPrefix(out, "safe-model ") {
		t.Fatalf("version = %q", out)
	}
}
