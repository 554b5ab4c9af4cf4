package domain

import (
	"sync"
	"time"
)

// SessionState tracks a session through its lifecycle:
// CONNECTING -> HISTORY_SENT -> ACTIVE -> CLOSED.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionHistorySent
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionHistorySent:
		return "history_sent"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the bookkeeping record for one live connection. The hub owns
// the transport; this records lifecycle state only. Sessions carry no user
// identity.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	state        SessionState
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		state:        SessionConnecting,
	}
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Advance moves the session forward through its lifecycle. Transitions
// never move backwards; a closed session stays closed.
func (s *Session) Advance(to SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to > s.state {
		s.state = to
	}
}

func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == SessionClosed
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
