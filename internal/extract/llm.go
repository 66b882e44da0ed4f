package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You read SAFE (Simple Agreement for Future Equity) term sheets and report the economic terms they state. Respond with strict JSON only."

const maxAttempts = 3

type failureClass int

const (
	failureTimeout failureClass = iota
	failureRateLimit
	failureServer
	failureClient
)

// retryable reports whether another attempt can help. Client errors (bad
// key, malformed request) fail the same way every time.
func (c failureClass) retryable() bool {
	return c != failureClient
}

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
}

var newAnthropicClient = func(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

// NewAnthropicCallerFromEnv builds a caller from ANTHROPIC_API_KEY.
// SAFE_NO_LLM forces pattern extraction even when a key is present.
func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	if envEnabled("SAFE_NO_LLM") {
		return nil, errors.New("llm extraction disabled by SAFE_NO_LLM")
	}
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey)}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   1024,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// LLMExtractor asks a model for the terms and falls back to ParseTerms when
// the model is unavailable or keeps answering badly.
type LLMExtractor struct {
	caller LLMCaller
	sleep  func(time.Duration)
}

func NewLLMExtractor(caller LLMCaller) *LLMExtractor {
	return &LLMExtractor{caller: caller, sleep: time.Sleep}
}

type llmTerms struct {
	ValuationCap     *float64 `json:"valuation_cap"`
	DiscountRate     *float64 `json:"discount_rate"`
	InvestmentAmount *float64 `json:"investment_amount"`
	ProRataRights    *bool    `json:"pro_rata_rights"`
	MFNProvision     *bool    `json:"mfn_provision"`
	BoardObserver    *bool    `json:"board_observer"`
}

func (t llmTerms) validate() error {
	var problems []string
	if t.ValuationCap != nil && *t.ValuationCap <= 0 {
		problems = append(problems, "valuation_cap must be positive")
	}
	if t.DiscountRate != nil && (*t.DiscountRate < 0 || *t.DiscountRate >= 100) {
		problems = append(problems, "discount_rate must be a percentage in [0,100)")
	}
	if t.InvestmentAmount != nil && *t.InvestmentAmount <= 0 {
		problems = append(problems, "investment_amount must be positive")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`Extract the SAFE terms from the document below.

Return a JSON object with these keys. Use null for anything the document does not state.
- valuation_cap: number, US dollars
- discount_rate: number, percent (20 means 20%%)
- investment_amount: number, US dollars
- pro_rata_rights: boolean
- mfn_provision: boolean
- board_observer: boolean

DOCUMENT:
%s`, text)
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	if e == nil || e.caller == nil {
		return ParseTerms(text), nil
	}
	var out llmTerms
	if err := e.run(ctx, buildPrompt(text), &out); err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		fallback := ParseTerms(text)
		return fallback, fmt.Errorf("llm extraction fell back to patterns: %w", err)
	}
	p := Partial(out)
	terms, defaulted := Merge(p)
	return Extraction{Partial: p, Terms: terms, Defaulted: defaulted, Method: "llm"}, nil
}

func (e *LLMExtractor) run(ctx context.Context, prompt string, out *llmTerms) error {
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}
		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if !class.retryable() {
				return fmt.Errorf("request rejected: %w", err)
			}
			if attempt < maxAttempts && ctx.Err() == nil {
				e.sleep(backoffDelay(attempt))
				continue
			}
			return fmt.Errorf("transport failure: %w", err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			feedback = "Your previous response was empty. Respond with valid JSON."
			continue
		}
		*out = llmTerms{}
		if err := json.Unmarshal([]byte(stripCodeFences(raw)), out); err != nil {
			feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
			continue
		}
		if err := out.validate(); err != nil {
			feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("no usable response after %d attempts", maxAttempts)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "status=5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, "status code: 4") || strings.Contains(msg, "status=4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

func envEnabled(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
