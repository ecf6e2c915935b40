package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	defaultDashboardDays = 30
	maxDashboardDays     = 365
	defaultLeadsLimit    = 50
	maxLeadsLimit        = 500
)

// DashboardHandler serves dashboard stats and the current status snapshot.
type DashboardHandler struct {
	*Handler
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(base *Handler) *DashboardHandler {
	return &DashboardHandler{Handler: base}
}

// RegisterRoutes registers the dashboard routes on the /api router.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.GetDashboard)
	r.Get("/flow-status", h.GetFlowStatus)
	r.Get("/overview", h.GetOverview)
	r.Get("/leads/unmapped", h.UnmappedLeads)
}

// GetDashboard returns headline stats and chart series.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultDashboardDays, maxDashboardDays)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.backend.GetDashboardData(r.Context(), r.URL.Query().Get("account"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, data)
}

// GetFlowStatus returns one status snapshot, for shells that poll on their own.
func (h *DashboardHandler) GetFlowStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.backend.GetFlowStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// GetOverview returns the message and lead counters of the overview page.
func (h *DashboardHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.backend.GetOverview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, overview)
}

// UnmappedLeads lists lead submissions still waiting to be mapped, optionally for one account.
func (h *DashboardHandler) UnmappedLeads(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultLeadsLimit, maxLeadsLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	leads, err := h.backend.UnmappedLeads(r.Context(), strings.TrimSpace(r.URL.Query().Get("account")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"leads": leads})
}
