package websocket

import (
	"sync"
)

// ConnectionManager tracks all live sessions accepted by a factory.
type ConnectionManager struct {
	mu       sync.RWMutex
	sessions map[string][]*Session // userID -> sessions
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[string][]*Session),
	}
}

// Add registers a new session
func (m *ConnectionManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := s.req.User.String()
	m.sessions[userID] = append(m.sessions[userID], s)
}

// Remove removes a session
func (m *ConnectionManager) Remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := s.req.User.String()
	conns := m.sessions[userID]
	for i, sess := range conns {
		if sess == s {
			m.sessions[userID] = append(conns[:i], conns[i+1:]...)

			// Clean up empty user entries
			if len(m.sessions[userID]) == 0 {
				delete(m.sessions, userID)
			}
			return
		}
	}
}

// UserSessions returns all sessions for a user
func (m *ConnectionManager) UserSessions(userID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.sessions[userID]
	if conns == nil {
		return []*Session{}
	}

	// Return a copy to avoid race conditions
	result := make([]*Session, len(conns))
	copy(result, conns)
	return result
}

// Count returns the total number of active sessions
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conns := range m.sessions {
		count += len(conns)
	}
	return count
}

// UserCount returns the number of users with active sessions
func (m *ConnectionManager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}
