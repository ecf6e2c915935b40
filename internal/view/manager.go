package view

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// mounted is a view together with the connection that mounted it.
type mounted struct {
	view View
	conn *websocket.Conn
}

// Manager tracks mounted views per user and tab session.
// Mounting on an occupied key tears down the previous view and closes its
// connection.
type Manager struct {
	mu     sync.Mutex
	active map[string]map[string]mounted
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]map[string]mounted)}
}

// Get returns the view mounted for a user and session.
func (m *Manager) Get(userID, sessionID string) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[userID][sessionID].view
}

// Register records v, mounted over conn, as the view for the user and
// session. conn may be nil for views without a connection.
func (m *Manager) Register(userID, sessionID string, v View, conn *websocket.Conn) {
	m.mu.Lock()
	if _, ok := m.active[userID]; !ok {
		m.active[userID] = make(map[string]mounted)
	}
	previous, exists := m.active[userID][sessionID]
	m.active[userID][sessionID] = mounted{view: v, conn: conn}
	m.mu.Unlock()

	if !exists || previous.view == v {
		return
	}
	previous.view.Teardown()
	if previous.conn != nil && previous.conn != conn {
		// Close waits for the peer's close frame, so do not hold up the new mount.
		go func() {
			_ = previous.conn.Close(websocket.StatusNormalClosure, "view replaced")
		}()
	}
	slog.Info("View replaced", "user_id", userID, "session_id", sessionID)
}

// Unregister tears v down and forgets it, unless another view has replaced it.
func (m *Manager) Unregister(userID, sessionID string, v View) {
	m.mu.Lock()
	if sessions, ok := m.active[userID]; ok && sessions[sessionID].view == v {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
	}
	m.mu.Unlock()

	v.Teardown()
}

// Count returns the number of mounted views.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// TeardownAll tears down every mounted view. Used on shutdown.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	var views []View
	for _, sessions := range m.active {
		for _, mv := range sessions {
			views = append(views, mv.view)
		}
	}
	m.active = make(map[string]map[string]mounted)
	m.mu.Unlock()

	for _, v := range views {
		v.Teardown()
	}
}
