package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/event"
)

const shardCount = 32

// Sender delivers one envelope to a session without blocking. A false
// return means the session's buffer was full and the delivery was dropped
// for that session only. Close tears down the underlying connection; it
// must be idempotent because detachment and transport errors can race.
type Sender interface {
	Send(env *event.Envelope) bool
	Close() error
}

// Bus is the distributed publish medium shared by server processes.
// Publish failures are transient; local fan-out never depends on them.
type Bus interface {
	Publish(ctx context.Context, channelID string, data []byte) error
}

type entry struct {
	mu   sync.RWMutex
	ch   *channel.Channel
	subs map[uuid.UUID]Sender
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Service maintains subscription sets per channel and fans out published
// envelopes. The channel table is sharded so subscribe/unsubscribe/publish
// never contend on a global lock.
type Service struct {
	shards [shardCount]*shard
	bus    Bus

	sendersMu sync.RWMutex
	senders   map[uuid.UUID]Sender

	dedupeMu sync.Mutex
	dedupe   *event.Deduper

	// origin tags published envelopes so loopback from the bus is ignored.
	origin string

	logger zerolog.Logger
}

// NewService creates a broker. bus may be nil for single-process setups.
func NewService(bus Bus, logger zerolog.Logger) *Service {
	s := &Service{
		bus:     bus,
		senders: make(map[uuid.UUID]Sender),
		dedupe:  event.NewDeduper(),
		origin:  uuid.NewString(),
		logger:  logger.With().Str("service", "broker").Logger(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func (s *Service) shardFor(channelID string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(channelID); i++ {
		h ^= uint32(channelID[i])
		h *= 16777619
	}
	return s.shards[h%shardCount]
}

// CreateChannel registers a channel. Existing channels are left untouched.
func (s *Service) CreateChannel(ch *channel.Channel) {
	sh := s.shardFor(ch.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[ch.ID]; ok {
		return
	}
	sh.entries[ch.ID] = &entry{ch: ch, subs: make(map[uuid.UUID]Sender)}
}

// DropChannel destroys an ephemeral channel, discarding its subscribers.
func (s *Service) DropChannel(channelID string) {
	sh := s.shardFor(channelID)
	sh.mu.Lock()
	delete(sh.entries, channelID)
	sh.mu.Unlock()
}

// Channel returns the channel definition, or nil.
func (s *Service) Channel(channelID string) *channel.Channel {
	e := s.lookup(channelID)
	if e == nil {
		return nil
	}
	return e.ch
}

func (s *Service) lookup(channelID string) *entry {
	sh := s.shardFor(channelID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.entries[channelID]
}

// Attach registers the delivery path for a session.
func (s *Service) Attach(sessionID uuid.UUID, sender Sender) {
	s.sendersMu.Lock()
	s.senders[sessionID] = sender
	s.sendersMu.Unlock()
}

// Detach removes a session's delivery path and closes it. A session whose
// registration is gone must not keep a live connection behind it.
func (s *Service) Detach(sessionID uuid.UUID) {
	s.sendersMu.Lock()
	sender := s.senders[sessionID]
	delete(s.senders, sessionID)
	s.sendersMu.Unlock()
	if sender != nil {
		_ = sender.Close()
	}
}

func (s *Service) sender(sessionID uuid.UUID) Sender {
	s.sendersMu.RLock()
	defer s.sendersMu.RUnlock()
	return s.senders[sessionID]
}

// Subscribe adds a session to a channel after an authorization check that
// never mutates channel state on failure. actorID is nil for anonymous
// sessions.
func (s *Service) Subscribe(sessionID uuid.UUID, actorID *uuid.UUID, channelID string) error {
	e := s.lookup(channelID)
	if e == nil {
		return channel.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ch.Authorize(actorID); err != nil {
		return err
	}
	sender := s.sender(sessionID)
	if sender == nil {
		return channel.ErrNotFound
	}
	e.subs[sessionID] = sender
	return nil
}

// Unsubscribe removes a session from a channel. Unknown channels are a no-op.
func (s *Service) Unsubscribe(sessionID uuid.UUID, channelID string) {
	e := s.lookup(channelID)
	if e == nil {
		return
	}
	e.mu.Lock()
	delete(e.subs, sessionID)
	e.mu.Unlock()
}

// Subscribed reports whether a session is subscribed to a channel.
func (s *Service) Subscribed(sessionID uuid.UUID, channelID string) bool {
	e := s.lookup(channelID)
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.subs[sessionID]
	return ok
}

// Publish fans an envelope out to local subscribers and then hands it to
// the bus fire-and-forget, so bus trouble never stalls local delivery.
// Returns the local fan-out count.
func (s *Service) Publish(channelID string, env *event.Envelope) int {
	env.Origin = s.origin
	if env.InstanceID != nil {
		// Record the sequence so the bus echo of this event is stale.
		s.dedupeMu.Lock()
		s.dedupe.Fresh(env)
		s.dedupeMu.Unlock()
	}
	n := s.fanOut(channelID, env)
	if s.bus != nil {
		data, err := env.Encode()
		if err != nil {
			s.logger.Error().Err(err).Str("channel", channelID).Msg("encode event")
			return n
		}
		go func() {
			if err := s.bus.Publish(context.Background(), channelID, data); err != nil {
				s.logger.Warn().Err(err).Str("channel", channelID).Msg("bus publish failed; local fan-out unaffected")
			}
		}()
	}
	return n
}

// IngestRemote fans out an envelope that arrived from the bus. It performs
// local delivery only and never re-publishes, so events cannot amplify
// between processes. Duplicate or stale deliveries are discarded by
// per-instance sequence number.
func (s *Service) IngestRemote(env *event.Envelope) int {
	if env.Origin == s.origin {
		return 0
	}
	s.dedupeMu.Lock()
	fresh := s.dedupe.Fresh(env)
	s.dedupeMu.Unlock()
	if !fresh {
		return 0
	}
	return s.fanOut(env.Channel, env)
}

func (s *Service) fanOut(channelID string, env *event.Envelope) int {
	e := s.lookup(channelID)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for id, sender := range e.subs {
		if sender.Send(env) {
			n++
		} else {
			s.logger.Debug().Str("session_id", id.String()).Str("channel", channelID).Msg("dropped delivery for slow consumer")
		}
	}
	return n
}

// SendTo delivers an envelope to a single session, bypassing channels.
// Used for rejections and errors reported to the submitter only.
func (s *Service) SendTo(sessionID uuid.UUID, env *event.Envelope) bool {
	sender := s.sender(sessionID)
	if sender == nil {
		return false
	}
	return sender.Send(env)
}

// SubscriberCounts snapshots per-channel subscriber counts.
func (s *Service) SubscriberCounts() map[string]int {
	counts := make(map[string]int)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.entries {
			e.mu.RLock()
			counts[id] = len(e.subs)
			e.mu.RUnlock()
		}
		sh.mu.RUnlock()
	}
	return counts
}

// ForgetInstance drops dedupe state for an archived instance.
func (s *Service) ForgetInstance(instanceID uuid.UUID) {
	s.dedupeMu.Lock()
	s.dedupe.Forget(instanceID)
	s.dedupeMu.Unlock()
}
