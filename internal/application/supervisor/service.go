package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/broker"
	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

// TurnResolver is the engine surface the supervisor drives on deadline.
type TurnResolver interface {
	ResolveTurnTimeout(ctx context.Context, instanceID uuid.UUID) error
	AddParticipant(instanceID uuid.UUID, p *combat.Participant, capacity int) error
}

// ArchiveSink receives terminal instances for async persistence.
type ArchiveSink interface {
	Enqueue(inst *combat.Instance)
}

type timerEntry struct {
	turn  int
	timer *time.Timer
}

// Service schedules turn deadlines and owns coordinated teardown, one
// entry per live instance. A sweep fires exactly once per deadline: a turn
// resolved before its deadline atomically replaces or cancels the pending
// timer, and the fire path re-checks the (instance, turn) generation under
// the lock so a stopped-but-fired timer is a no-op.
type Service struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*timerEntry

	resolver     TurnResolver
	broker       *broker.Service
	archive      ArchiveSink
	raidCapacity int

	logger zerolog.Logger
}

// NewService creates the supervisor. The resolver is bound afterward via
// SetResolver because the engine needs the supervisor as its scheduler.
func NewService(b *broker.Service, archive ArchiveSink, raidCapacity int, logger zerolog.Logger) *Service {
	return &Service{
		timers:       make(map[uuid.UUID]*timerEntry),
		broker:       b,
		archive:      archive,
		raidCapacity: raidCapacity,
		logger:       logger.With().Str("service", "supervisor").Logger(),
	}
}

// SetResolver binds the combat engine.
func (s *Service) SetResolver(r TurnResolver) {
	s.resolver = r
}

// Schedule arms the timeout for one instance turn, replacing any pending
// timer for the same instance.
func (s *Service) Schedule(instanceID uuid.UUID, turn int, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[instanceID]; ok {
		entry.timer.Stop()
	}
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	entry := &timerEntry{turn: turn}
	entry.timer = time.AfterFunc(delay, func() {
		s.fire(instanceID, turn)
	})
	s.timers[instanceID] = entry
}

// fire resolves an elapsed deadline. The generation check under the lock
// guarantees at most one firing per (instance, turn) even when a turn
// completion races the timer.
func (s *Service) fire(instanceID uuid.UUID, turn int) {
	s.mu.Lock()
	entry, ok := s.timers[instanceID]
	if !ok || entry.turn != turn {
		s.mu.Unlock()
		return
	}
	delete(s.timers, instanceID)
	s.mu.Unlock()

	if s.resolver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.resolver.ResolveTurnTimeout(ctx, instanceID); err != nil {
		s.logger.Warn().Err(err).Str("instance_id", instanceID.String()).Msg("timeout resolution failed")
	}
}

// Cancel stops any pending timeout for an instance.
func (s *Service) Cancel(instanceID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.timers[instanceID]; ok {
		entry.timer.Stop()
		delete(s.timers, instanceID)
	}
}

// Join admits a participant into a raid instance, rejecting with
// InstanceFull once the configured cap is reached.
func (s *Service) Join(instanceID uuid.UUID, p *combat.Participant) error {
	return s.resolver.AddParticipant(instanceID, p, s.raidCapacity)
}

// Teardown runs coordinated teardown for a terminal instance: pending
// timers cancelled, combat channel released, instance archived.
func (s *Service) Teardown(inst *combat.Instance) {
	s.Cancel(inst.ID)
	s.broker.DropChannel(channel.CombatID(inst.ID))
	s.broker.ForgetInstance(inst.ID)
	if s.archive != nil {
		s.archive.Enqueue(inst)
	}
	s.logger.Info().
		Str("instance_id", inst.ID.String()).
		Str("state", string(inst.State)).
		Msg("instance torn down")
}
