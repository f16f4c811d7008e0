// Package live bridges browser WebSocket connections to session state machines.
// The browser is the microphone and the speaker; the server runs the interview.
package live

import (
	"context"
	"log/slog"
	"sync"
)

// Peer is one live connection that can receive server messages.
type Peer interface {
	SendJSON(ctx context.Context, v any) error
	Close(reason string)
}

// Manager tracks live connections per user and tab session.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]Peer
	logger *slog.Logger
}

// NewManager creates an empty connection manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active: make(map[string]map[string]Peer),
		logger: logger,
	}
}

// GetActive returns the connection for a user and session, or nil.
func (m *Manager) GetActive(userID, sessionID string) Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection, closing any previous one for the same tab.
func (m *Manager) Register(userID, sessionID string, peer Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]Peer)
	}
	if existing, exists := m.active[userID][sessionID]; exists && existing != peer {
		existing.Close("session replaced")
	}
	m.active[userID][sessionID] = peer
	m.logger.Info("live session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes peer if it is still the current connection for the tab.
func (m *Manager) Unregister(userID, sessionID string, peer Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == peer {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			m.logger.Info("live session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll terminates every live connection. Used on shutdown, since hijacked
// connections outlive http.Server.Shutdown.
func (m *Manager) CloseAll(reason string) int {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]Peer)
	m.mu.Unlock()

	n := 0
	for userID, sessions := range active {
		for sid, peer := range sessions {
			peer.Close(reason)
			m.logger.Info("live session closed", "user_id", userID, "session_id", sid, "reason", reason)
			n++
		}
	}
	return n
}

// Notify sends v to every live connection of a user and returns how many
// deliveries succeeded.
func (m *Manager) Notify(ctx context.Context, userID string, v any) int {
	m.mu.RLock()
	peers := make([]Peer, 0, len(m.active[userID]))
	for _, p := range m.active[userID] {
		peers = append(peers, p)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, p := range peers {
		if err := p.SendJSON(ctx, v); err != nil {
			m.logger.Debug("live notify failed", "user_id", userID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
