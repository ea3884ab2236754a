package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/broker"
	"github.com/arena-hub/arena-hub/internal/domain/event"
	"github.com/arena-hub/arena-hub/internal/domain/session"
	"github.com/arena-hub/arena-hub/internal/infrastructure/identity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// GlobalChannel is the structural channel every session joins on register.
const GlobalChannel = "global"

type record struct {
	session    *session.Session
	credential string
}

// Service tracks authenticated live connections. It is the sole owner of
// session state; the broker holds only non-owning session IDs.
type Service struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*record

	broker   *broker.Service
	verifier identity.Verifier

	connTimeout        time.Duration
	revalidateInterval time.Duration

	logger zerolog.Logger
}

// NewService creates a session registry.
func NewService(b *broker.Service, verifier identity.Verifier, connTimeout, revalidateInterval time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		records:            make(map[uuid.UUID]*record),
		broker:             b,
		verifier:           verifier,
		connTimeout:        connTimeout,
		revalidateInterval: revalidateInterval,
		logger:             logger.With().Str("service", "registry").Logger(),
	}
}

// Register accepts a connection, resolving identity when a credential is
// supplied. A bad credential rejects the registration outright; an empty
// credential yields an anonymous session restricted to public channels.
func (s *Service) Register(ctx context.Context, sender broker.Sender, credential string) (*session.Session, error) {
	var ident *session.Identity
	if credential != "" {
		resolved, err := s.verifier.Verify(ctx, credential)
		if err != nil {
			return nil, err
		}
		ident = resolved
	}

	sess := session.New(ident)
	s.mu.Lock()
	s.records[sess.SessionID] = &record{session: sess, credential: credential}
	s.mu.Unlock()

	s.broker.Attach(sess.SessionID, sender)
	if err := s.Subscribe(sess.SessionID, GlobalChannel); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.SessionID.String()).Msg("global subscribe failed")
	}

	s.publishPresence(sess, "online")
	s.logger.Info().
		Str("session_id", sess.SessionID.String()).
		Bool("authenticated", sess.Authenticated()).
		Msg("session registered")
	return sess, nil
}

// Heartbeat refreshes the session's liveness stamp.
func (s *Service) Heartbeat(sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return ErrSessionExpired
	}
	rec.session.LastHeartbeatAt = time.Now().UTC()
	return nil
}

// Revalidate re-checks a session's credential. Failure terminates the
// session: the identity service is never failed open.
func (s *Service) Revalidate(ctx context.Context, sessionID uuid.UUID, credential string) error {
	s.mu.RLock()
	rec, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if !rec.session.Authenticated() {
		return nil
	}
	if _, err := s.verifier.Verify(ctx, credential); err != nil {
		s.logger.Info().Str("session_id", sessionID.String()).Msg("revalidation failed; deregistering")
		s.Deregister(sessionID)
		return err
	}
	s.mu.Lock()
	rec.credential = credential
	s.mu.Unlock()
	return nil
}

// Deregister destroys a session, cascading unsubscribe from every channel.
func (s *Service) Deregister(sessionID uuid.UUID) {
	s.mu.Lock()
	rec, ok := s.records[sessionID]
	if ok {
		delete(s.records, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	for channelID := range rec.session.Channels {
		s.broker.Unsubscribe(sessionID, channelID)
	}
	s.broker.Detach(sessionID)
	s.publishPresence(rec.session, "offline")
	s.logger.Info().Str("session_id", sessionID.String()).Msg("session deregistered")
}

// Subscribe joins a session to a channel via the broker, recording the
// membership on the session on success only.
func (s *Service) Subscribe(sessionID uuid.UUID, channelID string) error {
	s.mu.RLock()
	rec, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.broker.Subscribe(sessionID, rec.session.ActorID(), channelID); err != nil {
		return err
	}
	s.mu.Lock()
	rec.session.Channels[channelID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes a session from a channel.
func (s *Service) Unsubscribe(sessionID uuid.UUID, channelID string) {
	s.mu.Lock()
	rec, ok := s.records[sessionID]
	if ok {
		delete(rec.session.Channels, channelID)
	}
	s.mu.Unlock()
	if ok {
		s.broker.Unsubscribe(sessionID, channelID)
	}
}

// Broker exposes the channel broker for publish paths that already hold a
// validated session (chat, presence observers).
func (s *Service) Broker() *broker.Service {
	return s.broker
}

// Get returns the live session, or nil.
func (s *Service) Get(sessionID uuid.UUID) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil
	}
	return rec.session
}

// RunCleanup reaps sessions that missed heartbeats past the connection
// timeout. Runs until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped := s.reapStale()
			if reaped > 0 {
				s.logger.Info().Int("count", reaped).Msg("reaped stale sessions")
			}
		}
	}
}

func (s *Service) reapStale() int {
	now := time.Now().UTC()
	var stale []uuid.UUID
	s.mu.RLock()
	for id, rec := range s.records {
		if rec.session.Stale(now, s.connTimeout) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()
	for _, id := range stale {
		s.Deregister(id)
	}
	return len(stale)
}

// RunRevalidation periodically re-checks stored credentials for all
// authenticated sessions, independent of client activity.
func (s *Service) RunRevalidation(ctx context.Context) {
	ticker := time.NewTicker(s.revalidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.revalidateAll(ctx)
		}
	}
}

func (s *Service) revalidateAll(ctx context.Context) {
	type pending struct {
		id         uuid.UUID
		credential string
	}
	var batch []pending
	s.mu.RLock()
	for id, rec := range s.records {
		if rec.session.Authenticated() {
			batch = append(batch, pending{id: id, credential: rec.credential})
		}
	}
	s.mu.RUnlock()
	for _, p := range batch {
		_ = s.Revalidate(ctx, p.id, p.credential)
	}
}

// Stats is a point-in-time connection snapshot.
type Stats struct {
	Total         int            `json:"totalConnections"`
	Authenticated int            `json:"authenticatedConnections"`
	Channels      map[string]int `json:"channelSubscriptions"`
}

// Stats snapshots current connection counts.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	total := len(s.records)
	auth := 0
	for _, rec := range s.records {
		if rec.session.Authenticated() {
			auth++
		}
	}
	s.mu.RUnlock()
	return Stats{
		Total:         total,
		Authenticated: auth,
		Channels:      s.broker.SubscriberCounts(),
	}
}

type presencePayload struct {
	ActorID *uuid.UUID `json:"actorId,omitempty"`
	Name    string     `json:"name,omitempty"`
	Status  string     `json:"status"`
}

// publishPresence emits a presence event through the broker, never
// synchronously to observers.
func (s *Service) publishPresence(sess *session.Session, status string) {
	payload := presencePayload{Status: status}
	if sess.Identity != nil {
		payload.ActorID = sess.ActorID()
		payload.Name = sess.Identity.Name
	}
	env, err := event.New(event.TypePresence, GlobalChannel, 0, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode presence event")
		return
	}
	s.broker.Publish(GlobalChannel, env)
}
