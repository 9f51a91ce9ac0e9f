// Package trainer provides the websocket endpoint that drives a live
// trainer session.
package trainer

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the active trainer connection of each user.
// A user has at most one: a new connection replaces the previous one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user.
func (m *SessionManager) GetActive(userID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID]
}

// Count returns the number of connected users.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register adds a connection for a user, closing any connection it replaces.
// The replaced connection is closed outside the lock: its close handshake
// can wait on a peer that stopped reading.
func (m *SessionManager) Register(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	existing, exists := m.active[userID]
	m.active[userID] = conn
	m.mu.Unlock()

	slog.Info("Trainer session registered", "user_id", userID)
	if exists && existing != conn {
		slog.Info("Trainer session replaced", "user_id", userID)
		go func() {
			_ = existing.Close(websocket.StatusPolicyViolation, "session replaced")
		}()
	}
}

// Unregister removes a connection. A connection that was already replaced
// leaves its successor in place.
func (m *SessionManager) Unregister(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[userID]; exists && current == conn {
		delete(m.active, userID)
		slog.Info("Trainer session unregistered", "user_id", userID)
	}
}

// CloseAll terminates every active connection, used on shutdown.
// Connections close concurrently and CloseAll returns once all are done.
func (m *SessionManager) CloseAll(reason string) {
	m.mu.Lock()
	conns := make(map[string]*websocket.Conn, len(m.active))
	for userID, conn := range m.active {
		conns[userID] = conn
	}
	clear(m.active)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for userID, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, reason)
			slog.Info("Trainer session closed", "user_id", userID)
		}()
	}
	wg.Wait()
}
