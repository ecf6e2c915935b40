package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/events"
	"github.com/ashureev/pagedesk/internal/identity"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/go-chi/chi/v5"
)

const (
	defaultActionHistory = 50
	maxActionHistory     = 500
)

// ActionsHandler relays user-triggered backend actions and exposes their audit trail.
type ActionsHandler struct {
	*Handler
}

// NewActionsHandler creates an actions handler.
func NewActionsHandler(base *Handler) *ActionsHandler {
	return &ActionsHandler{Handler: base}
}

// RegisterRoutes registers the action routes on the /api router.
func (h *ActionsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Get("/", h.ListActions)
		r.Post("/sync-leads", h.SyncLeads)
		r.Post("/pull-insights", h.PullInsights)
		r.Post("/test-connection", h.TestConnection)
		r.Post("/refresh-token", h.RefreshToken)
	})
}

type actionRequest struct {
	Account string `json:"account"`
}

// ActionRun is the payload of the action event.
type ActionRun struct {
	UserID    string            `json:"user_id,omitempty"`
	Kind      domain.ActionKind `json:"kind"`
	Account   string            `json:"account,omitempty"`
	OK        bool              `json:"ok"`
	Processed int               `json:"processed,omitempty"`
}

// SyncLeads pulls new lead-ad submissions for one account.
func (h *ActionsHandler) SyncLeads(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account := strings.TrimSpace(req.Account)
	if account == "" {
		writeError(w, &domain.ValidationError{Problems: []string{"no account selected"}})
		return
	}
	h.run(w, r, domain.ActionSyncLeads, account, func(ctx context.Context) (*remote.ActionOutcome, error) {
		return h.backend.SyncLeads(ctx, account)
	})
}

// PullInsights pulls campaign insights.
func (h *ActionsHandler) PullInsights(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.ActionPullInsights, "", h.backend.PullInsights)
}

// TestConnection checks the backend's platform credentials.
func (h *ActionsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.ActionTestConnection, "", h.backend.TestConnection)
}

// RefreshToken exchanges the platform access token for a fresh one.
func (h *ActionsHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.ActionRefreshToken, "", h.backend.RefreshToken)
}

// run executes an action under the in-flight guard, then audits and announces it.
// The guard is global per action and account: pressing the button twice
// in two tabs still triggers one backend run.
func (h *ActionsHandler) run(w http.ResponseWriter, r *http.Request, kind domain.ActionKind, account string, fn func(ctx context.Context) (*remote.ActionOutcome, error)) {
	ctx := r.Context()
	key := "action:" + string(kind) + ":" + account

	outcome, err := remote.Guard(h.inflight, key, func() (*remote.ActionOutcome, error) {
		return fn(ctx)
	})
	h.audit(ctx, kind, account, "", err)

	run := ActionRun{
		UserID:  identity.UserIDFromContext(ctx),
		Kind:    kind,
		Account: account,
		OK:      err == nil,
	}
	if outcome != nil {
		run.Processed = outcome.Processed
	}
	events.PublishAsync(h.publisher, events.TypeActionRun, run, h.logger)

	if err != nil {
		h.logger.Warn("Action failed", "kind", kind, "account", account, "error", err)
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, outcome)
}

// ListActions returns the caller's recent actions, newest first.
func (h *ActionsHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultActionHistory, maxActionHistory)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	actions, err := h.repo.ListActions(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list actions", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	if actions == nil {
		actions = []*domain.ActionRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{"actions": actions})
}
