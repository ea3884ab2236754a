package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/broker"
	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/combat"
	"github.com/arena-hub/arena-hub/internal/domain/event"
)

var ErrInstanceNotFound = errors.New("instance not found")

// maxAutoChain bounds consecutive auto-combat turns resolved from a single
// entry point; anything past it is picked up by the next turn deadline.
const maxAutoChain = 256

// Decider selects an action for an auto-combat participant. Must be a pure
// function of the snapshot and return well within the turn deadline.
type Decider interface {
	ChooseAction(snap *combat.Instance, actorID uuid.UUID) (*combat.Action, error)
}

// Scheduler is the supervisor surface the engine drives: one pending
// timeout per instance turn, and coordinated teardown on terminal states.
type Scheduler interface {
	Schedule(instanceID uuid.UUID, turn int, deadline time.Time)
	Teardown(inst *combat.Instance)
}

type slot struct {
	mu   sync.Mutex
	inst *combat.Instance
}

// Service owns the turn-based state machine for every live combat
// instance. All mutation of one instance happens under that instance's
// lock — submissions race at the network edge, but only one is accepted
// per turn.
type Service struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]*slot

	broker    *broker.Service
	decider   Decider
	scheduler Scheduler
	formula   *FormulaPolicy

	turnDeadline   time.Duration
	decisionBudget time.Duration

	logger zerolog.Logger
}

// NewService creates the combat engine. The scheduler is bound afterward
// via SetScheduler because the supervisor needs the engine as its resolver.
func NewService(b *broker.Service, decider Decider, formula *FormulaPolicy, turnDeadline, decisionBudget time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		slots:          make(map[uuid.UUID]*slot),
		broker:         b,
		decider:        decider,
		formula:        formula,
		turnDeadline:   turnDeadline,
		decisionBudget: decisionBudget,
		logger:         logger.With().Str("service", "engine").Logger(),
	}
}

// SetScheduler binds the instance supervisor.
func (s *Service) SetScheduler(sched Scheduler) {
	s.scheduler = sched
}

// CreateInstance creates a pending instance and its combat channel, with
// membership granted to every participant.
func (s *Service) CreateInstance(_ context.Context, kind combat.Kind, participants []*combat.Participant) (*combat.Instance, error) {
	inst, err := combat.NewInstance(kind, participants)
	if err != nil {
		return nil, err
	}

	ch := channel.NewCombat(inst.ID)
	for _, p := range participants {
		ch.Grant(p.ActorID)
	}
	s.broker.CreateChannel(ch)

	s.mu.Lock()
	s.slots[inst.ID] = &slot{inst: inst}
	s.mu.Unlock()

	s.logger.Info().
		Str("instance_id", inst.ID.String()).
		Str("kind", string(kind)).
		Int("participants", len(participants)).
		Msg("instance created")
	return inst, nil
}

// Accept moves a pending instance into the active turn cycle and starts
// the first turn's deadline.
func (s *Service) Accept(ctx context.Context, instanceID uuid.UUID) error {
	sl := s.slot(instanceID)
	if sl == nil {
		return ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := sl.inst.Accept(); err != nil {
		return err
	}
	s.armTurnLocked(sl.inst)
	s.emitStarted(sl.inst)
	s.driveAutoLocked(ctx, sl)
	return nil
}

// AddParticipant admits a participant into a raid, enforcing the capacity
// cap atomically under the instance lock. The participant joins the end of
// the turn order.
func (s *Service) AddParticipant(instanceID uuid.UUID, p *combat.Participant, capacity int) error {
	sl := s.slot(instanceID)
	if sl == nil {
		return ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	inst := sl.inst
	if inst.Kind != combat.KindRaid {
		return fmt.Errorf("%w: only raids accept new participants", combat.ErrIllegalAction)
	}
	if inst.State.Terminal() {
		return combat.ErrInstanceNotActive
	}
	if capacity > 0 && len(inst.Participants) >= capacity {
		return combat.ErrInstanceFull
	}
	inst.Participants = append(inst.Participants, p)
	if ch := s.broker.Channel(channel.CombatID(inst.ID)); ch != nil {
		ch.Grant(p.ActorID)
	}
	return nil
}

// SubmitAction validates and resolves a client-submitted action. All
// rejection paths leave instance state untouched and are reported to the
// submitter only.
func (s *Service) SubmitAction(ctx context.Context, instanceID, actorID uuid.UUID, action *combat.Action) error {
	sl := s.slot(instanceID)
	if sl == nil {
		return ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := sl.inst.Validate(actorID, action); err != nil {
		return err
	}
	if err := s.resolveLocked(sl, action, false); err != nil {
		return err
	}
	s.driveAutoLocked(ctx, sl)
	return nil
}

// ResolveTurnTimeout resolves an elapsed turn as an implicit pass. It is
// invoked by the supervisor only, never by a client, and follows the
// normal resolution pipeline so the deadline cannot stall the machine.
func (s *Service) ResolveTurnTimeout(ctx context.Context, instanceID uuid.UUID) error {
	sl := s.slot(instanceID)
	if sl == nil {
		return ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	inst := sl.inst
	if inst.State != combat.StateActive {
		return nil
	}
	current := inst.Current()
	if current == nil {
		return nil
	}
	pass := &combat.Action{
		ActorID:    current.ActorID,
		InstanceID: inst.ID,
		Turn:       inst.Turn,
		Kind:       combat.ActionPass,
	}
	if err := s.resolveLocked(sl, pass, true); err != nil {
		return err
	}
	s.driveAutoLocked(ctx, sl)
	return nil
}

// Surrender completes the instance in favor of the opposing side.
func (s *Service) Surrender(instanceID, actorID uuid.UUID) error {
	sl := s.slot(instanceID)
	if sl == nil {
		return ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	inst := sl.inst
	if inst.State != combat.StateActive {
		return combat.ErrInstanceNotActive
	}
	p := inst.Participant(actorID)
	if p == nil {
		return combat.ErrNotParticipant
	}
	var winner combat.Side
	for _, other := range inst.Participants {
		if combat.Hostile(p.Side, other.Side) {
			winner = other.Side
			break
		}
	}
	inst.Complete(winner)
	s.emitEnded(inst, false)
	s.teardownLocked(inst)
	return nil
}

// MarkConnected flags a participant's connection state. Disconnection never
// aborts an instance; the participant becomes eligible for timeout and
// auto-pass resolution instead.
//
// Slot pointers are snapshotted before any slot lock is taken: teardown
// acquires the map lock while holding a slot lock, so holding the map lock
// across slot locks here would invert that order.
func (s *Service) MarkConnected(actorID uuid.UUID, connected bool) {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	for _, sl := range slots {
		sl.mu.Lock()
		if p := sl.inst.Participant(actorID); p != nil {
			p.Connected = connected
		}
		sl.mu.Unlock()
	}
}

// Instance returns a snapshot of a live instance.
func (s *Service) Instance(instanceID uuid.UUID) (*combat.Instance, error) {
	sl := s.slot(instanceID)
	if sl == nil {
		return nil, ErrInstanceNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.inst.Snapshot(), nil
}

func (s *Service) slot(instanceID uuid.UUID) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[instanceID]
}

// resolveLocked applies one accepted action: RESOLVING transition,
// deterministic damage, log append, turn advance, exactly one TurnResolved
// broadcast. Caller holds the slot lock and has validated the action.
func (s *Service) resolveLocked(sl *slot, action *combat.Action, timeout bool) (err error) {
	inst := sl.inst
	inst.State = combat.StateResolving

	// An engine fault during resolution aborts only this instance.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("instance_id", inst.ID.String()).Msg("resolution fault; aborting instance")
			inst.Abort()
			s.emitEnded(inst, true)
			s.teardownLocked(inst)
			err = combat.ErrInstanceAborted
		}
	}()

	actor := inst.Participant(action.ActorID)
	seed := ActionSeed(inst.ID, inst.Turn)
	roll := Roll(seed)

	var damage int
	var target *combat.Participant
	if action.Kind.Targeted() {
		target = inst.Participant(*action.TargetID)
		damage = s.formula.Damage(actor, target, action.Kind, roll, inst.Turn)
		target.Health -= damage
		if target.Health < 0 {
			target.Health = 0
		}
	}

	switch action.Kind {
	case combat.ActionDefend:
		// Defending covers the actor until its next turn comes around.
		actor.ApplyEffect(combat.EffectDefending, inst.Turn+len(inst.Participants)-1)
	case combat.ActionSkill:
		actor.Resource -= combat.SkillCost
	}

	inst.ActionLog = append(inst.ActionLog, combat.LogEntry{
		Turn:       inst.Turn,
		ActorID:    action.ActorID,
		Kind:       action.Kind,
		TargetID:   action.TargetID,
		Seed:       seed,
		Roll:       roll,
		Damage:     damage,
		Timeout:    timeout,
		ResolvedAt: time.Now().UTC(),
	})

	resolvedTurn := inst.Turn
	if inst.UpdatePhase() {
		s.emitPhase(inst)
	}

	winner, decided := inst.Decided()
	if decided {
		s.emitTurnResolved(inst, action, resolvedTurn, damage, roll, target, timeout)
		inst.Complete(winner)
		s.emitEnded(inst, false)
		s.teardownLocked(inst)
		return nil
	}

	inst.AdvanceTurn()
	for _, p := range inst.Participants {
		p.ExpireEffects(inst.Turn)
	}
	inst.State = combat.StateActive
	s.armTurnLocked(inst)
	s.emitTurnResolved(inst, action, resolvedTurn, damage, roll, target, timeout)
	return nil
}

// driveAutoLocked resolves consecutive turns whose participant has
// auto-combat enabled, delegating selection to the decision engine under
// its time budget. A decision failure degrades to a pass so the state
// machine never stalls on automation.
func (s *Service) driveAutoLocked(_ context.Context, sl *slot) {
	inst := sl.inst
	for i := 0; i < maxAutoChain; i++ {
		if inst.State != combat.StateActive {
			return
		}
		current := inst.Current()
		if current == nil || !current.AutoCombat {
			return
		}

		start := time.Now()
		action, err := s.decider.ChooseAction(inst.Snapshot(), current.ActorID)
		if err != nil || time.Since(start) > s.decisionBudget || inst.Validate(current.ActorID, action) != nil {
			action = &combat.Action{
				ActorID:    current.ActorID,
				InstanceID: inst.ID,
				Turn:       inst.Turn,
				Kind:       combat.ActionPass,
			}
		}
		if err := s.resolveLocked(sl, action, false); err != nil {
			return
		}
	}
}

// armTurnLocked stamps the turn deadline and schedules its timeout.
func (s *Service) armTurnLocked(inst *combat.Instance) {
	inst.TurnDeadline = time.Now().UTC().Add(s.turnDeadline)
	if s.scheduler != nil {
		s.scheduler.Schedule(inst.ID, inst.Turn, inst.TurnDeadline)
	}
}

// teardownLocked removes the slot and hands coordinated teardown to the
// supervisor. Archival is asynchronous; resolution never blocks on it.
func (s *Service) teardownLocked(inst *combat.Instance) {
	s.mu.Lock()
	delete(s.slots, inst.ID)
	s.mu.Unlock()
	if s.scheduler != nil {
		s.scheduler.Teardown(inst)
	}
}

type participantView struct {
	ActorID uuid.UUID   `json:"actorId"`
	Name    string      `json:"name"`
	Side    combat.Side `json:"side"`
	Health  int         `json:"health"`
}

type startedPayload struct {
	InstanceID     uuid.UUID         `json:"instanceId"`
	Kind           combat.Kind       `json:"kind"`
	Participants   []participantView `json:"participants"`
	CurrentActorID uuid.UUID         `json:"currentActorId"`
	TurnDeadline   time.Time         `json:"turnDeadline"`
}

type turnResolvedPayload struct {
	Turn         int               `json:"turn"`
	ActorID      uuid.UUID         `json:"actorId"`
	Kind         combat.ActionKind `json:"kind"`
	TargetID     *uuid.UUID        `json:"targetId,omitempty"`
	Damage       int               `json:"damage"`
	Roll         int               `json:"roll"`
	TargetHealth *int              `json:"targetHealth,omitempty"`
	NextActorID  *uuid.UUID        `json:"nextActorId,omitempty"`
	Timeout      bool              `json:"timeout,omitempty"`
}

type phasePayload struct {
	InstanceID uuid.UUID `json:"instanceId"`
	Phase      int       `json:"phase"`
}

type endedPayload struct {
	InstanceID uuid.UUID    `json:"instanceId"`
	WinnerSide *combat.Side `json:"winnerSide,omitempty"`
	Aborted    bool         `json:"aborted"`
}

func (s *Service) emitStarted(inst *combat.Instance) {
	views := make([]participantView, 0, len(inst.Participants))
	for _, p := range inst.Participants {
		views = append(views, participantView{ActorID: p.ActorID, Name: p.Name, Side: p.Side, Health: p.Health})
	}
	s.emit(inst, event.TypeCombatStarted, startedPayload{
		InstanceID:     inst.ID,
		Kind:           inst.Kind,
		Participants:   views,
		CurrentActorID: inst.Current().ActorID,
		TurnDeadline:   inst.TurnDeadline,
	})
}

func (s *Service) emitTurnResolved(inst *combat.Instance, action *combat.Action, turn, damage, roll int, target *combat.Participant, timeout bool) {
	payload := turnResolvedPayload{
		Turn:    turn,
		ActorID: action.ActorID,
		Kind:    action.Kind,
		Damage:  damage,
		Roll:    roll,
		Timeout: timeout,
	}
	if target != nil {
		payload.TargetID = action.TargetID
		h := target.Health
		payload.TargetHealth = &h
	}
	if inst.State == combat.StateActive {
		if next := inst.Current(); next != nil {
			id := next.ActorID
			payload.NextActorID = &id
		}
	}
	s.emit(inst, event.TypeTurnResolved, payload)
}

func (s *Service) emitPhase(inst *combat.Instance) {
	s.emit(inst, event.TypePhaseChanged, phasePayload{InstanceID: inst.ID, Phase: inst.Phase})
}

func (s *Service) emitEnded(inst *combat.Instance, aborted bool) {
	s.emit(inst, event.TypeCombatEnded, endedPayload{InstanceID: inst.ID, WinnerSide: inst.WinnerSide, Aborted: aborted})
}

// emit broadcasts exactly one event per accepted state transition to the
// instance's combat channel, stamped with the next instance sequence.
func (s *Service) emit(inst *combat.Instance, t event.Type, payload any) {
	env, err := event.New(t, channel.CombatID(inst.ID), inst.NextSeq(), payload)
	if err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.ID.String()).Msg("encode combat event")
		return
	}
	id := inst.ID
	env.InstanceID = &id
	s.broker.Publish(env.Channel, env)
}
