package view

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/pagedesk/internal/identity"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// frame is the JSON message pushed to the shell.
type frame struct {
	Type   string  `json:"type"`
	Region string  `json:"region,omitempty"`
	HTML   string  `json:"html,omitempty"`
	Notice *Notice `json:"notice,omitempty"`
}

// wsSurface renders onto a websocket connection.
type wsSurface struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSurface) Replace(ctx context.Context, region, html string) error {
	return s.write(ctx, frame{Type: "region", Region: region, HTML: html})
}

func (s *wsSurface) Notify(ctx context.Context, n Notice) error {
	return s.write(ctx, frame{Type: "alert", Notice: &n})
}

func (s *wsSurface) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Handler mounts views over WebSocket at /ws/{name}.
// The connection closing is the view's teardown.
type Handler struct {
	views         map[string]Factory
	manager       *Manager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket view handler.
func NewHandler(manager *Manager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		views:         make(map[string]Factory),
		manager:       manager,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// Register makes a view mountable under name.
func (h *Handler) Register(name string, f Factory) {
	h.views[name] = f
}

// RegisterRoutes registers the mount endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{name}", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	factory, ok := h.views[name]
	if !ok {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("View mount request", "view", name, "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "view closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	v := factory()
	h.manager.Register(userID, sessionID, v, ws)
	defer h.manager.Unregister(userID, sessionID, v)

	surface := &wsSurface{conn: ws}
	params := Params{
		UserID:    userID,
		SessionID: sessionID,
		Route:     r.URL.Query().Get("route"),
		Query:     r.URL.Query(),
	}
	if err := v.Mount(ctx, params, surface); err != nil {
		slog.Warn("View mount failed", "view", name, "error", err, "user_id", userID)
		_ = surface.Notify(ctx, Notice{Level: LevelError, Message: err.Error()})
		return
	}

	h.inputLoop(ctx, ws, v, surface, name, userID)
	slog.Info("View unmounted", "view", name, "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, v View, surface *wsSurface, name, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Debug("Ignoring malformed command", "error", err, "user_id", userID)
			continue
		}

		switch cmd.Type {
		case "ping":
			if err := surface.write(ctx, frame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "close":
			return
		default:
			err := v.Handle(ctx, cmd)
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				slog.Debug("View command failed", "view", name, "command", cmd.Type, "error", err, "user_id", userID)
			}
		}
	}
}
