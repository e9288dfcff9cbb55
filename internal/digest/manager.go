package digest

import (
	"log/slog"
	"sync"
	"time"
)

// Manager tracks at most one live session per conversation. A new digest
// supersedes the conversation's previous session; stale references fail
// with ErrSessionSuperseded or ErrSessionExpired.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager builds a session manager with the given session TTL.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// TTL returns the session time-to-live new sessions receive.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Install registers the session for its conversation, closing and
// discarding any session already installed there.
func (m *Manager) Install(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[s.ConversationID()]; ok {
		prev.Close()
		if m.logger != nil {
			m.logger.Info("digest session superseded",
				"conversation", s.ConversationID(), "previous", prev.ID(), "session", s.ID())
		}
	}
	m.sessions[s.ConversationID()] = s
}

// Resolve returns the conversation's live session iff it matches sessionID
// and has not expired.
func (m *Manager) Resolve(conversationID, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[conversationID]
	m.mu.Unlock()

	if !ok || s.ID() != sessionID {
		return nil, ErrSessionSuperseded
	}
	if s.Expired(m.now()) {
		m.remove(s)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Current returns the conversation's live session, if any.
func (m *Manager) Current(conversationID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	return s, ok
}

// Sweep closes and drops every expired session. Meant to run on a timer.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for _, s := range m.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(m.sessions, s.ConversationID())
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		if m.logger != nil {
			m.logger.Debug("digest session expired", "conversation", s.ConversationID(), "session", s.ID())
		}
	}
	return len(expired)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ConversationID()]; ok && cur == s {
		delete(m.sessions, s.ConversationID())
	}
	m.mu.Unlock()
	s.Close()
}
