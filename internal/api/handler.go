// Package api provides the HTTP handlers of the desk.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/events"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/ashureev/pagedesk/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler carries the dependencies shared by all API handlers.
type Handler struct {
	backend   remote.Backend
	repo      store.Repository
	publisher events.Publisher
	inflight  *remote.Inflight
	logger    *slog.Logger
}

// NewHandler creates a Handler. A nil publisher discards events.
func NewHandler(backend remote.Backend, repo store.Repository, publisher events.Publisher, inflight *remote.Inflight, logger *slog.Logger) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if inflight == nil {
		inflight = remote.NewInflight()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:   backend,
		repo:      repo,
		publisher: publisher,
		inflight:  inflight,
		logger:    logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeError maps err onto a status code: unmet preconditions are 422, a
// duplicate in-flight action is 409 and backend failures are 502.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    verr.Error(),
			"problems": verr.Problems,
		})
	case errors.Is(err, domain.ErrInFlight):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRemoteCall), errors.Is(err, domain.ErrUnknownDirection):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &domain.ValidationError{Problems: []string{fmt.Sprintf("invalid JSON body: %v", err)}}
}

// intQuery parses a positive integer query parameter, falling back to def.
func intQuery(r *http.Request, key string, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &domain.ValidationError{Problems: []string{key + " must be a positive integer"}}
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n, nil
}
