// Package handler provides the HTTP handlers of the status API.
// Handlers only read monitor state; nothing here triggers a cycle.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/pricewatch/internal/api/respond"
	"github.com/albapepper/pricewatch/internal/cooldown"
	"github.com/albapepper/pricewatch/internal/monitor"
)

// Monitor is the read side of *monitor.Monitor.
type Monitor interface {
	LastResult() (monitor.CycleResult, bool)
	Store() *cooldown.Store
}

// Upstream reports the upstream circuit breaker state.
type Upstream interface {
	BreakerState() string
}

// HealthFunc checks a dependency. A nil HealthFunc means there is nothing
// to check.
type HealthFunc func(ctx context.Context) error

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	mon       Monitor
	upstream  Upstream
	backend   string
	checkPers HealthFunc
	started   time.Time
	now       func() time.Time
}

// New creates a Handler. backend names the cooldown persistence backend and
// check probes it for /health/persistence.
func New(mon Monitor, up Upstream, backend string, check HealthFunc) *Handler {
	return &Handler{
		mon:       mon,
		upstream:  up,
		backend:   backend,
		checkPers: check,
		started:   time.Now(),
		now:       time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns the service name, status and useful links.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "pricewatch",
		"status":  "running",
		"docs":    "/docs/index.html",
		"metrics": "/metrics",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status, uptime and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    h.now().Sub(h.started).Round(time.Second).String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckPersistence verifies the cooldown persistence backend.
// @Summary Persistence health check
// @Description Verifies connectivity of the configured cooldown backend (postgres, redis or file).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/persistence [get]
func (h *Handler) HealthCheckPersistence(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"backend":   h.backend,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.checkPers != nil {
		if err := h.checkPers(r.Context()); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			respond.WriteJSONObject(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	body["status"] = "healthy"
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

// CycleView is the JSON form of a finished cycle.
type CycleView struct {
	RunID            string    `json:"run_id"`
	Result           string    `json:"result"`
	StartedAt        time.Time `json:"started_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	Items            int       `json:"items"`
	Invalid          int       `json:"invalid"`
	OnCooldown       int       `json:"on_cooldown"`
	Fetched          int       `json:"fetched"`
	HistoryErrors    int       `json:"history_errors"`
	InsufficientData int       `json:"insufficient_data"`
	NotEligible      int       `json:"not_eligible"`
	Eligible         int       `json:"eligible"`
	Delivered        int       `json:"delivered"`
	FailedDeliveries int       `json:"failed_deliveries"`
	Pruned           int       `json:"pruned"`
	Error            string    `json:"error,omitempty"`
	PersistError     string    `json:"persist_error,omitempty"`
}

func newCycleView(res monitor.CycleResult) *CycleView {
	v := &CycleView{
		RunID:            res.RunID,
		Result:           res.Result(),
		StartedAt:        res.StartedAt.UTC(),
		DurationSeconds:  res.Duration.Seconds(),
		Items:            res.Items,
		Invalid:          res.Invalid,
		OnCooldown:       res.OnCooldown,
		Fetched:          res.Fetched,
		HistoryErrors:    res.HistoryErrors,
		InsufficientData: res.InsufficientData,
		NotEligible:      res.NotEligible,
		Eligible:         res.Eligible,
		Delivered:        res.Delivered,
		FailedDeliveries: res.FailedDeliveries,
		Pruned:           res.Pruned,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	if res.PersistErr != nil {
		v.PersistError = res.PersistErr.Error()
	}
	return v
}

// StatusResponse is the body of /api/v1/status.
type StatusResponse struct {
	LastCycle       *CycleView `json:"last_cycle"`
	UpstreamCircuit string     `json:"upstream_circuit"`
	Persistence     struct {
		Enabled       bool    `json:"enabled"`
		Backend       string  `json:"backend"`
		CooldownHours float64 `json:"cooldown_hours"`
		Entries       int     `json:"entries"`
	} `json:"persistence"`
}

// GetStatus returns the last cycle summary and monitor state.
// @Summary Monitor status
// @Description Returns the most recent cycle result, the upstream circuit breaker state and cooldown store size. last_cycle is null before the first cycle finishes.
// @Tags status
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	if res, ok := h.mon.LastResult(); ok {
		resp.LastCycle = newCycleView(res)
	}
	resp.UpstreamCircuit = "unknown"
	if h.upstream != nil {
		resp.UpstreamCircuit = h.upstream.BreakerState()
	}

	store := h.mon.Store()
	resp.Persistence.Enabled = store.Enabled()
	resp.Persistence.Backend = h.backend
	resp.Persistence.CooldownHours = store.Window().Hours()
	resp.Persistence.Entries = store.Len()

	respond.WriteJSONObject(w, http.StatusOK, resp)
}

// --------------------------------------------------------------------------
// Cooldown
// --------------------------------------------------------------------------

// CooldownEntry is one SKU in the cooldown store.
type CooldownEntry struct {
	SKU        string     `json:"sku"`
	Raw        string     `json:"raw"`
	Valid      bool       `json:"valid"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	OnCooldown bool       `json:"on_cooldown"`
}

// CooldownResponse is the body of /api/v1/cooldown.
type CooldownResponse struct {
	Total   int             `json:"total"`
	Entries []CooldownEntry `json:"entries"`
}

func (h *Handler) entryView(store *cooldown.Store, e cooldown.Entry, now time.Time) CooldownEntry {
	v := CooldownEntry{SKU: e.SKU, Raw: e.Raw, Valid: e.Valid}
	if e.Valid {
		fetched := e.FetchedAt.UTC()
		expires := fetched.Add(store.Window())
		v.FetchedAt = &fetched
		v.ExpiresAt = &expires
		v.OnCooldown = store.OnCooldown(e.SKU, now)
	}
	return v
}

// GetCooldown lists cooldown entries, newest first.
// @Summary List cooldown entries
// @Description Returns SKU fetch timestamps newest first; entries with unreadable timestamps come last.
// @Tags cooldown
// @Produce json
// @Param limit query int false "Maximum entries to return"
// @Success 200 {object} CooldownResponse
// @Success 304 "Not modified"
// @Failure 400 {object} respond.ErrorResponse
// @Router /cooldown [get]
func (h *Handler) GetCooldown(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	store := h.mon.Store()
	entries := store.Entries()
	resp := CooldownResponse{Total: len(entries), Entries: make([]CooldownEntry, 0, len(entries))}
	now := h.now()
	for i, e := range entries {
		if limit >= 0 && i >= limit {
			break
		}
		resp.Entries = append(resp.Entries, h.entryView(store, e, now))
	}

	respond.WriteCachedJSONObject(w, r, resp)
}

// GetCooldownSKU returns the cooldown entry of a single SKU.
// @Summary Get cooldown entry
// @Description Returns the fetch timestamp of one SKU.
// @Tags cooldown
// @Produce json
// @Param sku path string true "Best Buy SKU"
// @Success 200 {object} CooldownEntry
// @Failure 404 {object} respond.ErrorResponse
// @Router /cooldown/{sku} [get]
func (h *Handler) GetCooldownSKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	store := h.mon.Store()
	for _, e := range store.Entries() {
		if e.SKU == sku {
			respond.WriteJSONObject(w, http.StatusOK, h.entryView(store, e, h.now()))
			return
		}
	}
	respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No fetch recorded for SKU "+sku)
}
