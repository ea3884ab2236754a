package session

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the resolved owner of an authenticated session.
type Identity struct {
	ActorID uuid.UUID `json:"actorId"`
	Name    string    `json:"name"`
}

// Session represents one live connection. Anonymous sessions (nil Identity)
// are permitted on public channels only. The registry owns all mutation;
// the broker holds only session IDs.
type Session struct {
	SessionID       uuid.UUID           `json:"sessionId"`
	Identity        *Identity           `json:"identity,omitempty"`
	Channels        map[string]struct{} `json:"-"`
	CreatedAt       time.Time           `json:"createdAt"`
	AuthenticatedAt *time.Time          `json:"authenticatedAt,omitempty"`
	LastHeartbeatAt time.Time           `json:"lastHeartbeatAt"`
}

// New creates a session, stamping heartbeat and creation time.
func New(identity *Identity) *Session {
	now := time.Now().UTC()
	s := &Session{
		SessionID:       uuid.New(),
		Identity:        identity,
		Channels:        make(map[string]struct{}),
		CreatedAt:       now,
		LastHeartbeatAt: now,
	}
	if identity != nil {
		s.AuthenticatedAt = &now
	}
	return s
}

// Authenticated reports whether the session carries a resolved identity.
func (s *Session) Authenticated() bool {
	return s.Identity != nil
}

// ActorID returns the identity's actor ID, or nil for anonymous sessions.
func (s *Session) ActorID() *uuid.UUID {
	if s.Identity == nil {
		return nil
	}
	id := s.Identity.ActorID
	return &id
}

// Stale reports whether the session has missed heartbeats past the timeout.
func (s *Session) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastHeartbeatAt) > timeout
}
