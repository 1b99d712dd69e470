package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

// DefaultSessionTTL is how long a session stays valid after login
const DefaultSessionTTL = 12 * time.Hour

// SessionManager issues and validates bearer session tokens
type SessionManager struct {
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]model.Session
}

// NewSessionManager creates a session manager
func NewSessionManager(ttl time.Duration, logger *zap.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		logger:   logger.Named("sessions"),
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]model.Session),
	}
}

// Create starts a session for user
func (m *SessionManager) Create(user model.User) model.Session {
	now := m.now()
	session := model.Session{
		Token:     uuid.New().String(),
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(now)
	m.sessions[session.Token] = session
	return session
}

// Lookup returns the live session for token
func (m *SessionManager) Lookup(token string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[token]
	if !ok {
		return model.Session{}, ErrSessionNotFound
	}
	if !m.now().Before(session.ExpiresAt) {
		delete(m.sessions, token)
		return model.Session{}, ErrSessionExpired
	}
	return session, nil
}

// Revoke ends the session for token
func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// RevokeUser ends every session of username
func (m *SessionManager) RevokeUser(username string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, s := range m.sessions {
		if s.Username == username {
			delete(m.sessions, token)
			n++
		}
	}
	if n > 0 {
		m.logger.Info("Revoked sessions", zap.String("username", username), zap.Int("count", n))
	}
	return n
}

func (m *SessionManager) purgeLocked(now time.Time) {
	for token, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, token)
		}
	}
}
