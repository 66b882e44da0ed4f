package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseTermsDefaultExtraction(t *testing.T) {
	text := "This SAFE carries a $5,000,000 valuation cap, a 20% discount and pro rata rights for the investor."
	got := ParseTerms(text)
	if got.Terms.ValuationCap != 5000000 || got.Terms.DiscountRate != 20 {
		t.Fatalf("terms = %+v", got.Terms)
	}
	if !got.Terms.ProRataRights || got.Terms.MFNProvision || got.Terms.BoardObserver {
		t.Fatalf("flags = %+v", got.Terms)
	}
	if got.Terms.InvestmentAmount != DefaultInvestmentAmount {
		t.Fatalf("investment amount = %v", got.Terms.InvestmentAmount)
	}
	if len(got.Defaulted) != 1 || got.Defaulted[0] != "investment_amount" {
		t.Fatalf("defaulted = %v", got.Defaulted)
	}
	if got.Method != "pattern" {
		t.Fatalf("method = %q", got.Method)
	}
}

func TestParseTermsUnitsAndLabels(t *testing.T) {
	text := `Purchase Amount: $500k
Post-money valuation cap of... $8M post-money valuation cap
Discount rate of 15%. Most Favored Nation clause applies. Investor gets a board observer seat.`
	got := ParseTerms(text).Terms
	if got.ValuationCap != 8000000 {
		t.Fatalf("cap = %v", got.ValuationCap)
	}
	if got.InvestmentAmount != 500000 {
		t.Fatalf("amount = %v", got.InvestmentAmount)
	}
	if got.DiscountRate != 15 {
		t.Fatalf("discount = %v", got.DiscountRate)
	}
	if got.ProRataRights || !got.MFNProvision || !got.BoardObserver {
		t.Fatalf("flags = %+v", got)
	}
}

func TestParseTermsAmountSkipsCapFigure(t *testing.T) {
	got := ParseTerms("A $6,000,000 cap. The investor wires $150,000 at signing.").Terms
	if got.ValuationCap != 6000000 || got.InvestmentAmount != 150000 {
		t.Fatalf("terms = %+v", got)
	}
}

func TestParseTermsNothingFound(t *testing.T) {
	got := ParseTerms("no economics here")
	if got.Terms != Defaults() {
		t.Fatalf("terms = %+v", got.Terms)
	}
	if len(got.Defaulted) != 3 {
		t.Fatalf("defaulted = %v", got.Defaulted)
	}
	if err := got.Terms.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestMergeIgnoresOutOfRangeValues(t *testing.T) {
	neg, big := -1.0, 150.0
	got, defaulted := Merge(Partial{ValuationCap: &neg, DiscountRate: &big})
	if got.ValuationCap != DefaultValuationCap || got.DiscountRate != DefaultDiscountRate {
		t.Fatalf("terms = %+v", got)
	}
	if len(defaulted) != 3 {
		t.Fatalf("defaulted = %v", defaulted)
	}
}

func TestDocumentFromFilePlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.txt")
	if err := os.WriteFile(path, []byte("  $4M valuation cap\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	out, err := DocumentFromFile(t.Context(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Method != "plain-text" || out.Text != "$4M valuation cap" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDocumentFromBytesPDFFallback(t *testing.T) {
	t.Setenv("PDFTOTEXT_PATH", filepath.Join(t.TempDir(), "missing-pdftotext"))
	body := []byte("%PDF-1.4\nThe SAFE has a $5,000,000 valuation cap and a 20% discount.\n%%EOF")
	out, err := DocumentFromBytes(t.Context(), body)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Method != "byte-fallback" || !strings.Contains(out.Text, "valuation cap") {
		t.Fatalf("out = %+v", out)
	}
}

func TestDocumentRejectsBinaryAndEmpty(t *testing.T) {
	if _, err := DocumentFromBytes(t.Context(), []byte{0xff, 0xfe, 0x00}); err == nil {
		t.Fatal("expected binary rejection")
	}
	if _, err := DocumentFromBytes(t.Context(), []byte("   ")); err == nil {
		t.Fatal("expected empty rejection")
	}
}

func TestTruncateText(t *testing.T) {
	out := truncateText(strings.Repeat("é", maxTextRun), "plain-text")
	if !out.Truncated || !strings.HasSuffix(out.Text, "[TRUNCATED]") {
		t.Fatalf("expected truncation, got len=%d", len(out.Text))
	}
}

type scriptedCaller struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCaller) GenerateJSON(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], err
	}
	return "", err
}

func noSleep(e *LLMExtractor) *LLMExtractor {
	e.sleep = func(time.Duration) {}
	return e
}

func TestLLMExtractorParsesFencedJSON(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"```json\n{\"valuation_cap\":7000000,\"discount_rate\":10,\"investment_amount\":null,\"pro_rata_rights\":true,\"mfn_provision\":null,\"board_observer\":false}\n```"}}
	got, err := noSleep(NewLLMExtractor(caller)).Extract(t.Context(), "doc")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Method != "llm" || got.Terms.ValuationCap != 7000000 || got.Terms.DiscountRate != 10 || !got.Terms.ProRataRights {
		t.Fatalf("got = %+v", got)
	}
	if got.Terms.InvestmentAmount != DefaultInvestmentAmount {
		t.Fatalf("amount should default, got %v", got.Terms.InvestmentAmount)
	}
}

func TestLLMExtractorRetriesWithFeedback(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"not json", `{"discount_rate":250}`, `{"discount_rate":25}`}}
	got, err := noSleep(NewLLMExtractor(caller)).Extract(t.Context(), "doc")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Terms.DiscountRate != 25 || len(caller.prompts) != 3 {
		t.Fatalf("discount=%v prompts=%d", got.Terms.DiscountRate, len(caller.prompts))
	}
	if !strings.Contains(caller.prompts[1], "not valid JSON") || !strings.Contains(caller.prompts[2], "failed validation") {
		t.Fatalf("feedback missing from retries")
	}
}

func TestLLMExtractorFallsBackToPatterns(t *testing.T) {
	caller := &scriptedCaller{errs: []error{errors.New("status code: 401 unauthorized")}}
	got, err := noSleep(NewLLMExtractor(caller)).Extract(t.Context(), "a $3M cap and 20% discount")
	if err == nil {
		t.Fatal("expected fallback error")
	}
	if got.Method != "pattern" || got.Terms.ValuationCap != 3000000 {
		t.Fatalf("got = %+v", got)
	}
	if len(caller.prompts) != 1 {
		t.Fatalf("client errors should not retry, prompts=%d", len(caller.prompts))
	}
	if !strings.Contains(err.Error(), "request rejected") {
		t.Fatalf("err = %v", err)
	}
}

func TestLLMExtractorRetriesServerErrorsThenFallsBack(t *testing.T) {
	failure := errors.New("status code: 503 service unavailable")
	caller := &scriptedCaller{errs: []error{failure, failure, failure}}
	got, err := noSleep(NewLLMExtractor(caller)).Extract(t.Context(), "a $3M cap")
	if err == nil || !strings.Contains(err.Error(), "transport failure") {
		t.Fatalf("err = %v", err)
	}
	if len(caller.prompts) != maxAttempts || got.Method != "pattern" {
		t.Fatalf("prompts=%d method=%s", len(caller.prompts), got.Method)
	}
}

func TestLLMAndMergeAgreeOnDiscountBounds(t *testing.T) {
	for _, rate := range []float64{0, 99.5, 100, -1} {
		v := rate
		llmOK := llmTerms{DiscountRate: &v}.validate() == nil
		terms, _ := Merge(Partial{DiscountRate: &v})
		mergeOK := terms.DiscountRate == rate
		if llmOK != mergeOK {
			t.Fatalf("rate %v: llm accepts=%v merge accepts=%v", rate, llmOK, mergeOK)
		}
	}
	full := 100.0
	if terms, defaulted := Merge(Partial{DiscountRate: &full}); terms.DiscountRate != DefaultDiscountRate || len(defaulted) != 3 {
		t.Fatalf("terms=%+v defaulted=%v", terms, defaulted)
	}
}

func TestNilExtractorUsesPatterns(t *testing.T) {
	var e *LLMExtractor
	got, err := e.Extract(t.Context(), "$2,000,000 valuation cap")
	if err != nil || got.Terms.ValuationCap != 2000000 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestClassifyTransportError(t *testing.T) {
	for _, tc := range []struct {
		msg  string
		want failureClass
	}{
		{"failed after 5 retries while waiting 4 seconds", failureServer},
		{"status code: 400 bad request", failureClient},
		{"status=500 upstream error", failureServer},
		{"429 too many requests", failureRateLimit},
	} {
		if got := classifyTransportError(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.msg, got, tc.want)
		}
	}
	if got := classifyTransportError(context.DeadlineExceeded); got != failureTimeout {
		t.Fatalf("deadline: got %v", got)
	}
}

func TestNewAnthropicCallerFromEnvDisabled(t *testing.T) {
	t.Setenv("SAFE_NO_LLM", "1")
	t.Setenv("ANTHROPIC_API_KEY", "ignored")
	if _, err := NewAnthropicCallerFromEnv(); err == nil {
		t.Fatal("expected error when SAFE_NO_LLM is enabled")
	}
}
