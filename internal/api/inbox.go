package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/identity"
	"github.com/ashureev/pagedesk/internal/inbox"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxMessageLimit = 500

// InboxHandler serves conversations over plain HTTP for shells that do not
// mount the live inbox view.
type InboxHandler struct {
	*Handler
	defaultLimit int
}

// NewInboxHandler creates an inbox handler.
func NewInboxHandler(base *Handler, defaultLimit int) *InboxHandler {
	return &InboxHandler{Handler: base, defaultLimit: defaultLimit}
}

// RegisterRoutes registers the inbox routes on the /api router.
func (h *InboxHandler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.ListAccounts)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{id}", h.GetConversation)
	r.Post("/conversations/{id}/messages", h.SendMessage)
}

func (h *InboxHandler) newView(r *http.Request, account string) *inbox.View {
	v := inbox.NewView(h.backend, inbox.Options{
		Limit:     h.defaultLimit,
		Publisher: h.publisher,
		Inflight:  h.inflight,
		Logger:    h.logger,
	})
	v.SetAccount(account)
	v.SetUser(identity.UserIDFromContext(r.Context()))
	return v
}

// ListAccounts returns the accounts usable as account scope.
func (h *InboxHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.backend.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// ListConversations returns one summary per correspondent, most recent first.
func (h *InboxHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", h.defaultLimit, maxMessageLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	account := r.URL.Query().Get("account")

	messages, err := h.backend.GetMessages(r.Context(), account, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	summaries, err := inbox.Summarize(messages)
	if err != nil {
		h.logger.Warn("Backend returned an unusable message", "error", err, "account", account)
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"account":       account,
		"conversations": summaries,
	})
}

// GetConversation returns the transcript with one correspondent, oldest first.
func (h *InboxHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	v := h.newView(r, r.URL.Query().Get("account"))
	transcript, err := v.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"correspondent_id": v.Selected(),
		"messages":         transcript,
	})
}

type sendRequest struct {
	Account string `json:"account"`
	Text    string `json:"text"`
}

// SendMessage sends a text message and returns the refreshed transcript.
func (h *InboxHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	correspondentID := chi.URLParam(r, "id")
	v := h.newView(r, req.Account)
	v.Select(correspondentID)

	receipt, err := v.Send(r.Context(), req.Text)
	h.audit(r.Context(), domain.ActionSendMessage, req.Account, correspondentID, err)
	if err != nil {
		writeError(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]any{
		"message_id":   receipt.MessageID,
		"recipient_id": receipt.RecipientID,
		"messages":     v.Transcript(),
	})
}

// audit records a user-triggered action. Validation failures are not recorded.
func (h *Handler) audit(ctx context.Context, kind domain.ActionKind, account, target string, actionErr error) {
	if domain.IsValidation(actionErr) {
		return
	}
	userID := identity.UserIDFromContext(ctx)
	if userID == "" {
		return
	}

	rec := &domain.ActionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Account:   account,
		Target:    target,
		OK:        actionErr == nil,
		CreatedAt: time.Now(),
	}
	if actionErr != nil {
		rec.Detail = strings.TrimSpace(actionErr.Error())
	}

	// The audit write must survive a client that hangs up right after the action.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.repo.RecordAction(auditCtx, rec); err != nil {
		h.logger.Error("Failed to record action", "error", err, "kind", kind, "user_id", userID)
	}
}
