package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/report"
	"github.com/joelkehle/safe-negotiator/internal/safe"
)

type scenarioRequest struct {
	Terms       *safe.Terms             `json:"terms"`
	Multipliers []safe.GrowthMultiplier `json:"multipliers"`
	Assumptions json.RawMessage         `json:"assumptions"`
}

type scenarioResult struct {
	Key          string
	TermsVersion int
	Terms        safe.Terms
	Set          safe.ScenarioSet
}

// buildScenarios resolves defaults for the request and returns the cached
// set for identical inputs, building it on a miss.
func (s *Server) buildScenarios(ctx context.Context, req scenarioRequest) (scenarioResult, error) {
	terms, version, err := s.resolveTerms(ctx, req.Terms)
	if err != nil {
		return scenarioResult{}, err
	}
	multipliers := req.Multipliers
	if len(multipliers) == 0 {
		multipliers = safe.DefaultMultipliers()
	}
	a := safe.DefaultAssumptions(s.clock().UTC().Truncate(24 * time.Hour))
	if len(req.Assumptions) > 0 {
		if err := json.Unmarshal(req.Assumptions, &a); err != nil {
			return scenarioResult{}, invalidJSON(err)
		}
	}
	key, err := scenarioKey(terms, multipliers, a)
	if err != nil {
		return scenarioResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "scenarios.build", trace.WithAttributes(
		attribute.String("scenario.key", key),
		attribute.Int("scenario.count", len(multipliers)),
	))
	defer span.End()

	if v, ok := s.scenarios.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		res := v.(scenarioResult)
		res.TermsVersion = version
		return res, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	set := safe.BuildScenarios(ctx, terms, multipliers, a)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return scenarioResult{}, err
	}
	if len(set.Failures) > 0 {
		span.SetAttributes(attribute.Int("scenario.failures", len(set.Failures)))
		for _, f := range set.Failures {
			log.Printf("scenario failed name=%q kind=%s err=%s", f.Name, f.Kind, f.Error)
		}
	}
	res := scenarioResult{Key: key, TermsVersion: version, Terms: terms, Set: set}
	s.scenarios.Set(key, res, gocache.DefaultExpiration)
	return res, nil
}

func scenarioKey(terms safe.Terms, multipliers []safe.GrowthMultiplier, a safe.Assumptions) (string, error) {
	blob, err := json.Marshal(struct {
		Terms       safe.Terms              `json:"terms"`
		Multipliers []safe.GrowthMultiplier `json:"multipliers"`
		Assumptions safe.Assumptions        `json:"assumptions"`
	}{terms, multipliers, a})
	if err != nil {
		return "", fmt.Errorf("scenario key: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:12]), nil
}

// cachedOrDefault returns the set stored under the query's key, or the
// default set for the current terms when no key is given.
func (s *Server) cachedOrDefault(r *http.Request) (scenarioResult, error) {
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		v, ok := s.scenarios.Get(key)
		if !ok {
			return scenarioResult{}, &Error{Code: CodeNotFound, Message: "scenario set " + key + " expired or unknown", Status: http.StatusNotFound}
		}
		return v.(scenarioResult), nil
	}
	return s.buildScenarios(r.Context(), scenarioRequest{})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	var (
		res scenarioResult
		err error
	)
	switch r.Method {
	case http.MethodGet:
		res, err = s.cachedOrDefault(r)
	case http.MethodPost:
		var req scenarioRequest
		if err = decodeBody(r, &req); err == nil {
			res, err = s.buildScenarios(r.Context(), req)
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"key":           res.Key,
		"terms_version": res.TermsVersion,
		"scenarios":     res.Set.Scenarios,
		"failures":      res.Set.Failures,
	})
}

func (s *Server) handleScenarioByName(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/v1/scenarios/"))
	if err != nil || strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		writeError(w, invalidQuery("scenario name is required"))
		return
	}
	res, err := s.cachedOrDefault(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sc, ok := res.Set.Lookup(name)
	if !ok {
		writeError(w, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no scenario named %q", name), Status: http.StatusNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "key": res.Key, "scenario": sc})
}

func (s *Server) reportMarkdown(r *http.Request) (string, error) {
	res, err := s.cachedOrDefault(r)
	if err != nil {
		return "", err
	}
	industry, stage := segment(r)
	in := report.Input{
		Terms:        res.Terms,
		TermsVersion: res.TermsVersion,
		Scenarios:    res.Set,
		GeneratedAt:  s.clock(),
	}
	if a, err := benchmark.Assess(res.Terms, s.benchmarks, industry, stage); err == nil {
		in.Assessment = &a
	} else {
		log.Printf("report benchmark skipped industry=%s stage=%s err=%v", industry, stage, err)
	}
	return report.BuildMarkdown(in), nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	md, err := s.reportMarkdown(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.renderer == nil {
		writeError(w, &Error{Code: CodeInternal, Message: "pdf rendering is not configured", Status: http.StatusServiceUnavailable})
		return
	}
	md, err := s.reportMarkdown(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, span := s.tracer.Start(r.Context(), "report.render_pdf")
	defer span.End()
	pdf, err := s.renderer.Render(ctx, md)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="safe-scenarios.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
