package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/report"
	"github.com/joelkehle/safe-negotiator/internal/telemetry"
	"github.com/joelkehle/safe-negotiator/internal/termstore"
)

const (
	maxJSONBody      = 1 << 20
	defaultCacheTTL  = 10 * time.Minute
	defaultIndustry  = benchmark.IndustrySoftware
	defaultStage     = benchmark.StageSeed
	defaultRateBurst = 20
)

type Config struct {
	Store      termstore.Store
	Benchmarks benchmark.Table
	// Renderer is optional; without it /v1/report.pdf answers 503.
	Renderer report.Renderer
	// Extractor is optional; mode=llm falls back to pattern parsing without it.
	Extractor *extract.LLMExtractor
	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit float64
	RateBurst int
	CacheTTL  time.Duration
	Clock     func() time.Time
	Tracer    trace.Tracer
}

type Server struct {
	store      termstore.Store
	benchmarks benchmark.Table
	renderer   report.Renderer
	extractor  *extract.LLMExtractor
	limiter    *rate.Limiter
	scenarios  *gocache.Cache
	clock      func() time.Time
	tracer     trace.Tracer
}

func NewServer(cfg Config) http.Handler {
	if cfg.Benchmarks == nil {
		cfg.Benchmarks = benchmark.DefaultTable
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer()
	}
	s := &Server{
		store:      cfg.Store,
		benchmarks: cfg.Benchmarks,
		renderer:   cfg.Renderer,
		extractor:  cfg.Extractor,
		scenarios:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		clock:      cfg.Clock,
		tracer:     cfg.Tracer,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = defaultRateBurst
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/terms", s.handleTerms)
	mux.HandleFunc("/v1/terms/history", s.handleTermsHistory)
	mux.HandleFunc("/v1/terms/extract", s.handleExtract)
	mux.HandleFunc("/v1/convert", s.handleConvert)
	mux.HandleFunc("/v1/dilution", s.handleDilution)
	mux.HandleFunc("/v1/exits", s.handleExits)
	mux.HandleFunc("/v1/exit-table", s.handleExitTable)
	mux.HandleFunc("/v1/benchmarks", s.handleBenchmarks)
	mux.HandleFunc("/v1/percentile", s.handlePercentile)
	mux.HandleFunc("/v1/scenarios", s.handleScenarios)
	mux.HandleFunc("/v1/scenarios/", s.handleScenarioByName)
	mux.HandleFunc("/v1/report", s.handleReport)
	mux.HandleFunc("/v1/report.pdf", s.handleReportPDF)
	return s.logRequests(s.rateLimit(mux))
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.URL.Path != "/v1/health" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, &Error{Code: CodeRateLimited, Message: "too many requests", Status: http.StatusTooManyRequests})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http method=%s path=%s status=%d duration=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	ae := toAPIError(err)
	if ae.Status >= 500 {
		log.Printf("http error code=%s err=%v", ae.Code, ae.Message)
	}
	writeJSON(w, ae.Status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    ae.Code,
			"message": ae.Message,
		},
	})
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(blob))) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

// decodeBody reads a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	blob, err := readBody(r)
	if err != nil {
		return invalidJSON(err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return invalidJSON(err)
	}
	return nil
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalidQuery("%s must be a number, got %q", name, raw)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	payload := map[string]any{"ok": true, "time": s.clock()}
	if v, err := s.store.Current(r.Context()); err == nil {
		payload["terms_version"] = v.Number
	}
	writeJSON(w, http.StatusOK, payload)
}
