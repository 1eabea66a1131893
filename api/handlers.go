/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to payroll.Engine. Every route is
  scoped by the agency in the path; there is no ambient agency.

ENDPOINTS:
  Rule sets:
    POST   /api/agencies/{agencyID}/rule-sets                 Create/replace rule set
    GET    /api/agencies/{agencyID}/rule-sets/{name}          Resolved rules (defaults if missing)

  Contracts:
    POST   /api/agencies/{agencyID}/contracts                 Create contract
    GET    /api/agencies/{agencyID}/contracts/{id}            Contract with entries and totals
    POST   /api/agencies/{agencyID}/contracts/{id}/status     Lifecycle transition
    POST   /api/agencies/{agencyID}/contracts/{id}/detach-staff
    GET    /api/agencies/{agencyID}/contracts/{id}/progress

  Entries:
    POST   /api/agencies/{agencyID}/contracts/{id}/entries         Record (upsert) a day
    DELETE /api/agencies/{agencyID}/contracts/{id}/entries/{date}  Remove a day
    POST   /api/agencies/{agencyID}/contracts/{id}/preview         Day formula, nothing stored

  Totals:
    POST   /api/agencies/{agencyID}/contracts/{id}/totals     Recompute and store
    GET    /api/agencies/{agencyID}/contracts/{id}/totals     Stored totals

  Payroll:
    GET    /api/agencies/{agencyID}/payroll                   Filtered list + batch refresh + stats
    POST   /api/agencies/{agencyID}/recalculate               Refresh every contract

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Contract or entry not found
  - 409: Invalid status transition
  - 500: Persistence and internal errors
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *payroll.Engine
	Log      *logrus.Logger
	PageSize int
}

// NewHandler creates a new handler around engine.
func NewHandler(engine *payroll.Engine, log *logrus.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		Log:      log,
		PageSize: payroll.DefaultPageSize,
	}
}

// =============================================================================
// RULE SET HANDLERS
// =============================================================================

// SaveRuleSet creates or replaces a rule set for the agency.
func (h *Handler) SaveRuleSet(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return
	}
	var req RuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cutoff, err := payroll.ParseClockTime(req.LateCutoff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lateCutoff", err)
		return
	}

	rs := payroll.RuleSet{
		Key:                     payroll.RuleKey{Name: req.Name, AgencyID: agencyID},
		DurationDays:            req.DurationDays,
		LateCutoff:              cutoff,
		FirstMinutePenalty:      req.FirstMinutePenalty,
		AdditionalMinutePenalty: req.AdditionalMinutePenalty,
		DrinkPrice:              req.DrinkPrice,
		StaffCommission:         req.StaffCommission,
	}
	if err := h.Engine.SaveRuleSet(r.Context(), rs); err != nil {
		h.writeEngineError(w, "SaveRuleSet", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleSetDTO(rs))
}

// GetRuleSet returns the rules that govern contracts of this type.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return
	}
	rs, err := h.Engine.ResolveRules(r.Context(), payroll.RuleKey{Name: chi.URLParam(r, "name"), AgencyID: agencyID})
	if err != nil {
		h.writeEngineError(w, "GetRuleSet", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetDTO(rs))
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract opens an active contract.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return
	}
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDay(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startDate", err)
		return
	}

	nc := payroll.NewContractRequest{
		AgencyID:    agencyID,
		StaffName:   req.StaffName,
		Role:        req.Role,
		RuleSetName: req.RuleSetName,
		StartDate:   start,
		BaseSalary:  req.BaseSalary,
	}
	if req.StaffID != nil {
		id := payroll.StaffID(*req.StaffID)
		nc.StaffID = &id
	}
	if req.VenueID != nil {
		id := payroll.VenueID(*req.VenueID)
		nc.VenueID = &id
	}

	c, err := h.Engine.CreateContract(r.Context(), nc)
	if err != nil {
		h.writeEngineError(w, "CreateContract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

// GetContract returns a contract with its entries and stored totals.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	c, err := h.Engine.GetContract(r.Context(), agencyID, id)
	if err != nil {
		h.writeEngineError(w, "GetContract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(c))
}

// TransitionContract moves a contract to a later lifecycle status.
func (h *Handler) TransitionContract(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, err := h.Engine.TransitionContract(r.Context(), agencyID, id, payroll.ContractStatus(req.Status))
	if err != nil {
		h.writeEngineError(w, "TransitionContract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(c))
}

// DetachStaff archives the staff identity on a contract.
func (h *Handler) DetachStaff(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	var req DetachStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Engine.DetachStaff(r.Context(), agencyID, id, req.StaffName, req.StaffPhoto); err != nil {
		h.writeEngineError(w, "DetachStaff", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProgress reports how many days have been recorded.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	p, err := h.Engine.ContractProgress(r.Context(), agencyID, id)
	if err != nil {
		h.writeEngineError(w, "GetProgress", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressDTO{
		ContractID:      int64(p.ContractID),
		Status:          string(p.Status),
		DisplayStatus:   p.DisplayStatus,
		ContractDays:    p.ContractDays,
		DaysRecorded:    p.DaysRecorded,
		RuleSetDuration: p.RuleSetDuration,
	})
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// RecordEntry upserts the day's entry and returns the refreshed totals.
func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	draft, err := req.Draft()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry", err)
		return
	}

	res, err := h.Engine.RecordEntry(r.Context(), agencyID, id, draft)
	if err != nil {
		h.writeEngineError(w, "RecordEntry", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordEntryResponse{
		Entry:  toEntryDTO(res.Entry),
		Totals: toTotalsDTO(res.Totals),
	})
}

// DeleteEntry removes the entry for the date in the path.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	date, err := parseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	totals, err := h.Engine.DeleteEntry(r.Context(), agencyID, id, date)
	if err != nil {
		h.writeEngineError(w, "DeleteEntry", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// PreviewEntry runs the day formula for the contract without storing it.
func (h *Handler) PreviewEntry(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	draft, err := req.Draft()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry", err)
		return
	}

	ctx := r.Context()
	c, err := h.Engine.GetContract(ctx, agencyID, id)
	if err != nil {
		h.writeEngineError(w, "PreviewEntry", err)
		return
	}
	p, err := h.Engine.PreviewDailyCalculation(ctx, c, draft)
	if err != nil {
		h.writeEngineError(w, "PreviewEntry", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		ProratedBase:    p.ProratedBase,
		LateMinutes:     p.LateMinutes,
		LatenessPenalty: p.LatenessPenalty,
		DailySalary:     p.DailySalary,
		Revenue:         p.Revenue,
		Commission:      p.Commission,
		DailyProfit:     p.DailyProfit,
		DefaultRules:    p.DefaultRules,
	})
}

// =============================================================================
// TOTALS HANDLERS
// =============================================================================

// RefreshTotals recomputes and stores the contract totals.
func (h *Handler) RefreshTotals(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	t, err := h.Engine.ComputeOrRefreshTotals(r.Context(), agencyID, id)
	if err != nil {
		h.writeEngineError(w, "RefreshTotals", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(t))
}

// GetTotals returns stored totals without recomputing.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	agencyID, id, ok := contractParams(w, r)
	if !ok {
		return
	}
	t, err := h.Engine.GetContractSummary(r.Context(), agencyID, id)
	if err != nil {
		h.writeEngineError(w, "GetTotals", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Totals not computed yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(*t))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GetPayroll lists contracts, refreshes them in one batch and rolls up stats.
//
// Query parameters: status (comma separated), rule_set, venue_id, staff_id,
// from, to (YYYY-MM-DD), limit, offset. limit defaults to, and is capped
// at, PageSize so one request never refreshes an unbounded batch.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(agencyID, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	if filter.Limit <= 0 || filter.Limit > h.PageSize {
		filter.Limit = h.PageSize
	}

	report, err := h.Engine.Payroll(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, "GetPayroll", err)
		return
	}

	resp := PayrollResponse{
		Rows:  make([]PayrollRowDTO, 0, len(report.Rows)),
		Stats: toStatsDTO(report.Stats),
	}
	for _, row := range report.Rows {
		c := row.Contract
		c.Entries = nil
		resp.Rows = append(resp.Rows, PayrollRowDTO{
			Contract:        toContractDTO(c),
			Totals:          toTotalsDTO(row.Totals),
			ContractDays:    row.ContractDays,
			RuleSetDuration: row.RuleSetDuration,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Recalculate refreshes every contract of the agency.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return
	}
	n, err := h.Engine.RecalculateAll(r.Context(), agencyID, h.PageSize)
	resp := RecalculateResponse{Refreshed: n}
	if err != nil {
		config.LogError(h.Log, "api", "Recalculate", "partial recalculation", logrus.Fields{"agency_id": agencyID}, err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseFilter(agencyID payroll.AgencyID, r *http.Request) (payroll.ContractFilter, error) {
	q := r.URL.Query()
	f := payroll.ContractFilter{
		AgencyID:    agencyID,
		RuleSetName: q.Get("rule_set"),
	}
	if s := q.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			status := payroll.ContractStatus(strings.TrimSpace(st))
			if !status.Valid() {
				return f, errors.New("unknown status " + string(status))
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if s := q.Get("venue_id"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f, errors.New("venue_id must be an integer")
		}
		v := payroll.VenueID(n)
		f.VenueID = &v
	}
	if s := q.Get("staff_id"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f, errors.New("staff_id must be an integer")
		}
		v := payroll.StaffID(n)
		f.StaffID = &v
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(name); s != "" {
			d, err := parseDay(s)
			if err != nil {
				return f, err
			}
			*dst = &d
		}
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, errors.New("limit must be an integer")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, errors.New("offset must be an integer")
	}
	return f, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func agencyParam(w http.ResponseWriter, r *http.Request) (payroll.AgencyID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "agencyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid agency id", err)
		return 0, false
	}
	return payroll.AgencyID(n), true
}

func contractParams(w http.ResponseWriter, r *http.Request) (payroll.AgencyID, payroll.ContractID, bool) {
	agencyID, ok := agencyParam(w, r)
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract id", err)
		return 0, 0, false
	}
	return agencyID, payroll.ContractID(n), true
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, funcName string, err error) {
	switch {
	case errors.Is(err, payroll.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid status transition", err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, payroll.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "Entry not found", err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Contract not found", err)
	default:
		config.LogError(h.Log, "api", funcName, "request failed", nil, err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
