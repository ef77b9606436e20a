// Package session keeps per-login state in process memory. Nothing here is
// durable; a restart drops every session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindmate.app/companion/internal/store"
)

type Session struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	// ExpiresAt is zero when the manager has no TTL.
	ExpiresAt time.Time

	mu      sync.Mutex
	history []store.Interaction
}

func (s *Session) Append(rec store.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
}

// History returns a copy of the interactions recorded during this login.
func (s *Session) History() []store.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Interaction, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Manager holds live sessions. Sessions older than ttl are dropped on lookup
// and by Sweep, matching the lifetime of the cookie that points at them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns a manager whose sessions live for ttl. A ttl <= 0 keeps
// sessions until Delete.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a fresh session with an empty history.
func (m *Manager) Create(userID, name string) *Session {
	now := m.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
	}
	if m.ttl > 0 {
		sess.ExpiresAt = now.Add(m.ttl)
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

// Get returns the session only if it exists, has not expired and belongs to
// userID. An expired session is removed.
func (m *Manager) Get(id, userID string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if sess.expired(m.now()) {
		m.Delete(id)
		return nil, false
	}
	if sess.UserID != userID {
		return nil, false
	}
	return sess, true
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Sweep removes every expired session and reports how many were dropped.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration, onSweep func(dropped int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
