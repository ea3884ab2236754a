package combat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an encounter.
type Kind string

const (
	KindDuel Kind = "duel"
	KindPvE  Kind = "pve"
	KindRaid Kind = "raid"
)

// State is the combat state machine.
//
//	PENDING -> ACTIVE -> RESOLVING -> ACTIVE ... -> COMPLETE | ABORTED
//
// RESOLVING is transient: it is held only while one accepted action is being
// applied and is never observable as a rest state.
type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateResolving State = "RESOLVING"
	StateComplete  State = "COMPLETE"
	StateAborted   State = "ABORTED"
)

// Terminal reports whether the state has no outgoing edges.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted
}

var (
	ErrNotYourTurn       = errors.New("not your turn")
	ErrIllegalAction     = errors.New("illegal action")
	ErrInstanceNotActive = errors.New("instance not active")
	ErrInstanceFull      = errors.New("instance at capacity")
	ErrInstanceAborted   = errors.New("instance aborted")
	ErrNotParticipant    = errors.New("actor is not a participant")
	ErrNotPending        = errors.New("instance is not pending")
)

// Raid phase thresholds: the boss entering these health fractions advances
// the phase before the next turn.
var phaseThresholds = []float64{0.66, 0.33}

// EnragePhase is the phase from which defending is no longer legal.
const EnragePhase = 2

// Instance is one live combat encounter. All mutation happens inside the
// engine under a per-instance lock; participant order is turn order.
type Instance struct {
	ID           uuid.UUID      `json:"id"`
	Kind         Kind           `json:"kind"`
	Participants []*Participant `json:"participants"`
	State        State          `json:"state"`
	// CurrentTurn indexes Participants; Turn is the monotonic turn counter
	// embedded in every event for idempotent consumption.
	CurrentTurn  int        `json:"currentTurn"`
	Turn         int        `json:"turn"`
	TurnDeadline time.Time  `json:"turnDeadline"`
	Phase        int        `json:"phase"`
	Seq          uint64     `json:"seq"`
	ActionLog    []LogEntry `json:"actionLog"`
	WinnerSide   *Side      `json:"winnerSide,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

// NewInstance creates a pending instance. Participant order is turn order.
func NewInstance(kind Kind, participants []*Participant) (*Instance, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: need at least two participants", ErrIllegalAction)
	}
	return &Instance{
		ID:           uuid.New(),
		Kind:         kind,
		Participants: participants,
		State:        StatePending,
		Turn:         1,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Accept moves a pending instance into the active turn cycle.
func (i *Instance) Accept() error {
	if i.State != StatePending {
		return ErrNotPending
	}
	i.State = StateActive
	return nil
}

// Participant returns the participant for an actor, or nil.
func (i *Instance) Participant(actorID uuid.UUID) *Participant {
	for _, p := range i.Participants {
		if p.ActorID == actorID {
			return p
		}
	}
	return nil
}

// Current returns the participant whose turn it is.
func (i *Instance) Current() *Participant {
	if i.CurrentTurn < 0 || i.CurrentTurn >= len(i.Participants) {
		return nil
	}
	return i.Participants[i.CurrentTurn]
}

// Validate checks a submitted action against the rules, in order:
// instance active, actor's turn, kind affordable given resources and
// status, target alive and legal. It never mutates state.
func (i *Instance) Validate(actorID uuid.UUID, action *Action) error {
	if i.State != StateActive {
		return ErrInstanceNotActive
	}
	current := i.Current()
	if current == nil || current.ActorID != actorID {
		return ErrNotYourTurn
	}
	if !action.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrIllegalAction, action.Kind)
	}
	if !i.LegalKind(current, action.Kind) {
		return fmt.Errorf("%w: %s not available", ErrIllegalAction, action.Kind)
	}
	if action.Kind.Targeted() {
		if action.TargetID == nil {
			return fmt.Errorf("%w: %s requires a target", ErrIllegalAction, action.Kind)
		}
		target := i.Participant(*action.TargetID)
		if target == nil {
			return fmt.Errorf("%w: unknown target", ErrIllegalAction)
		}
		if !target.Alive() {
			return fmt.Errorf("%w: target is down", ErrIllegalAction)
		}
		if !Hostile(current.Side, target.Side) {
			return fmt.Errorf("%w: target is not hostile", ErrIllegalAction)
		}
	}
	return nil
}

// LegalKind reports whether an action kind is available to a participant
// given its resource pool, status effects, and the current raid phase.
func (i *Instance) LegalKind(p *Participant, kind ActionKind) bool {
	if p.Resource < kind.Cost() {
		return false
	}
	if kind == ActionDefend && i.Kind == KindRaid && i.Phase >= EnragePhase {
		return false
	}
	return true
}

// LegalTargets lists living hostile participants for a given side, in turn
// order. Used by the decision engine.
func (i *Instance) LegalTargets(side Side) []*Participant {
	var targets []*Participant
	for _, p := range i.Participants {
		if p.Alive() && Hostile(side, p.Side) {
			targets = append(targets, p)
		}
	}
	return targets
}

// AdvanceTurn moves to the next living participant, wrapping in turn order,
// and increments the monotonic turn counter. The counter never regresses.
func (i *Instance) AdvanceTurn() {
	i.Turn++
	n := len(i.Participants)
	for step := 1; step <= n; step++ {
		idx := (i.CurrentTurn + step) % n
		if i.Participants[idx].Alive() {
			i.CurrentTurn = idx
			return
		}
	}
}

// Decided reports whether at most one hostile grouping remains alive, and
// if so which side won.
func (i *Instance) Decided() (Side, bool) {
	var survivor Side
	for _, p := range i.Participants {
		if !p.Alive() {
			continue
		}
		if survivor == "" {
			survivor = p.Side
			continue
		}
		if Hostile(survivor, p.Side) {
			return "", false
		}
	}
	return survivor, survivor != ""
}

// UpdatePhase recomputes the raid phase from boss health. Returns true when
// the phase advanced; the new phase takes effect for the next turn's
// legal-action set. Phases never regress.
func (i *Instance) UpdatePhase() bool {
	if i.Kind != KindRaid {
		return false
	}
	var boss *Participant
	for _, p := range i.Participants {
		if p.Side == SideBoss {
			boss = p
			break
		}
	}
	if boss == nil || boss.MaxHealth == 0 {
		return false
	}
	frac := float64(boss.Health) / float64(boss.MaxHealth)
	phase := 0
	for _, threshold := range phaseThresholds {
		if frac <= threshold {
			phase++
		}
	}
	if phase > i.Phase {
		i.Phase = phase
		if phase >= EnragePhase {
			boss.ApplyEffect(EffectEnraged, i.Turn+1000)
		}
		return true
	}
	return false
}

// NextSeq advances and returns the instance event sequence.
func (i *Instance) NextSeq() uint64 {
	i.Seq++
	return i.Seq
}

// Complete terminates the instance with a winning side.
func (i *Instance) Complete(winner Side) {
	now := time.Now().UTC()
	i.State = StateComplete
	i.WinnerSide = &winner
	i.EndedAt = &now
}

// Abort terminates the instance with a neutral outcome.
func (i *Instance) Abort() {
	now := time.Now().UTC()
	i.State = StateAborted
	i.EndedAt = &now
}

// Snapshot returns a deep copy used by the decision engine, which must be a
// pure function of instance state.
func (i *Instance) Snapshot() *Instance {
	cp := *i
	cp.Participants = make([]*Participant, len(i.Participants))
	for idx, p := range i.Participants {
		cp.Participants[idx] = p.Clone()
	}
	cp.ActionLog = append([]LogEntry(nil), i.ActionLog...)
	return &cp
}
