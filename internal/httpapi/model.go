package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/safe"
	"github.com/joelkehle/safe-negotiator/internal/termstore"
)

const (
	defaultYearsToExit   = 5
	defaultExitTableFrom = 10_000_000
	defaultExitTableTo   = 100_000_000
	defaultExitTableStep = 10_000_000
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Terms          *safe.Terms `json:"terms"`
		EventValuation float64     `json:"event_valuation"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	terms, version, err := s.resolveTerms(r.Context(), req.Terms)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := safe.Convert(terms, req.EventValuation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "terms_version": version, "conversion": c})
}

func (s *Server) handleDilution(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Terms         *safe.Terms         `json:"terms"`
		Rounds        []safe.FundingRound `json:"rounds"`
		Stakeholders  []safe.Stakeholder  `json:"stakeholders"`
		InitialShares float64             `json:"initial_shares"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	terms, version, err := s.resolveTerms(r.Context(), req.Terms)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Stakeholders) == 0 {
		a := safe.DefaultAssumptions(s.clock())
		if req.InitialShares > 0 {
			a.InitialShares = req.InitialShares
		}
		req.Stakeholders = a.Stakeholders()
		req.InitialShares = a.InitialShares
	}
	ledger, err := safe.Simulate(terms, req.Rounds, req.Stakeholders, req.InitialShares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "terms_version": version, "ledger": ledger})
}

func (s *Server) handleExits(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Terms         *safe.Terms       `json:"terms"`
		Step          safe.DilutionStep `json:"step"`
		ExitValues    []float64         `json:"exit_values"`
		ExitMultiples []float64         `json:"exit_multiples"`
		YearsToExit   *float64          `json:"years_to_exit"`
		Investor      string            `json:"investor"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	terms, version, err := s.resolveTerms(r.Context(), req.Terms)
	if err != nil {
		writeError(w, err)
		return
	}
	base := req.Step.Round.Valuation
	exits := req.ExitValues
	if len(exits) == 0 {
		for _, m := range req.ExitMultiples {
			exits = append(exits, base*m)
		}
	}
	outcomes, err := safe.Project(terms, exits, req.Step)
	if err != nil {
		writeError(w, err)
		return
	}
	years := float64(defaultYearsToExit)
	if req.YearsToExit != nil {
		years = *req.YearsToExit
	}
	outcomes, err = safe.AssignProbabilities(outcomes, base, years, safe.DefaultTiers())
	if err != nil {
		writeError(w, err)
		return
	}
	investor := strings.TrimSpace(req.Investor)
	if investor == "" {
		investor = firstInvestor(req.Step.Stakeholders)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"terms_version": version,
		"outcomes":      outcomes,
		"summary":       safe.Summarize(outcomes, req.Step, investor),
		"investor":      investor,
	})
}

func firstInvestor(holders []safe.Stakeholder) string {
	for _, h := range holders {
		if h.Role == safe.RoleInvestor {
			return h.Name
		}
	}
	return ""
}

func (s *Server) handleExitTable(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	from, err := queryFloat(r, "from", defaultExitTableFrom)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := queryFloat(r, "to", defaultExitTableTo)
	if err != nil {
		writeError(w, err)
		return
	}
	step, err := queryFloat(r, "step", defaultExitTableStep)
	if err != nil {
		writeError(w, err)
		return
	}
	if step > 0 && (to-from)/step > 10_000 {
		writeError(w, invalidQuery("exit table would exceed 10000 rows"))
		return
	}
	terms, version, err := s.resolveTerms(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := safe.ExitTable(terms, from, to, step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "terms_version": version, "rows": rows})
}

func (s *Server) handleBenchmarks(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "benchmarks": s.benchmarks})
}

// handlePercentile ranks the current terms, or the cap and discount given
// in the query, for an industry and stage.
func (s *Server) handlePercentile(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	industry, stage := segment(r)
	q := r.URL.Query()
	hasCap, hasDiscount := q.Get("cap") != "", q.Get("discount") != ""

	terms, version, err := s.resolveTerms(r.Context(), nil)
	if err != nil && !(errors.Is(err, termstore.ErrNotFound) && hasCap && hasDiscount) {
		writeError(w, err)
		return
	}
	if terms.ValuationCap, err = queryFloat(r, "cap", terms.ValuationCap); err != nil {
		writeError(w, err)
		return
	}
	if terms.DiscountRate, err = queryFloat(r, "discount", terms.DiscountRate); err != nil {
		writeError(w, err)
		return
	}
	a, err := benchmark.Assess(terms, s.benchmarks, industry, stage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "terms_version": version, "assessment": a})
}

func segment(r *http.Request) (benchmark.Industry, benchmark.Stage) {
	industry := benchmark.Industry(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("industry"))))
	if industry == "" {
		industry = defaultIndustry
	}
	stage := benchmark.Stage(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("stage"))))
	if stage == "" {
		stage = defaultStage
	}
	return industry, stage
}
