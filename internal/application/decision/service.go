package decision

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

var ErrNoActor = errors.New("actor not in snapshot")

// Weights configure the expected-value function over candidate actions.
type Weights struct {
	// Damage scales expected damage output.
	Damage float64
	// Utility scales non-damage value (defending under pressure).
	Utility float64
	// ResourceCost penalizes spending from the resource pool.
	ResourceCost float64
}

// DefaultWeights favor damage with a mild resource penalty.
func DefaultWeights() Weights {
	return Weights{Damage: 1.0, Utility: 0.6, ResourceCost: 0.3}
}

// Service selects actions for auto-combat participants. ChooseAction is a
// pure function of the snapshot: identical snapshots yield the identical
// action, which is what makes automated turns testable.
type Service struct {
	weights Weights
	logger  zerolog.Logger
}

func NewService(weights Weights, logger zerolog.Logger) *Service {
	return &Service{
		weights: weights,
		logger:  logger.With().Str("service", "decision").Logger(),
	}
}

// ChooseAction picks the highest expected-value affordable action against
// the highest-threat legal target. Falls back to a basic attack, which is
// always affordable, so a choice is always returned when any legal target
// exists.
func (s *Service) ChooseAction(snap *combat.Instance, actorID uuid.UUID) (*combat.Action, error) {
	actor := snap.Participant(actorID)
	if actor == nil {
		return nil, ErrNoActor
	}

	target := pickTarget(snap.LegalTargets(actor.Side))
	if target == nil {
		// Nothing to fight; pass keeps the turn cycle moving.
		return &combat.Action{
			ActorID:    actorID,
			InstanceID: snap.ID,
			Turn:       snap.Turn,
			Kind:       combat.ActionPass,
		}, nil
	}

	kind := s.pickKind(snap, actor, target)
	action := &combat.Action{
		ActorID:    actorID,
		InstanceID: snap.ID,
		Turn:       snap.Turn,
		Kind:       kind,
	}
	if kind.Targeted() {
		id := target.ActorID
		action.TargetID = &id
	}
	return action, nil
}

// pickTarget prioritizes the lowest health-to-damage-output ratio, breaking
// ties by lowest remaining health, then by actor ID for determinism.
func pickTarget(targets []*combat.Participant) *combat.Participant {
	if len(targets) == 0 {
		return nil
	}
	sorted := append([]*combat.Participant(nil), targets...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ra := threat(sorted[a])
		rb := threat(sorted[b])
		if ra != rb {
			return ra < rb
		}
		if sorted[a].Health != sorted[b].Health {
			return sorted[a].Health < sorted[b].Health
		}
		return sorted[a].ActorID.String() < sorted[b].ActorID.String()
	})
	return sorted[0]
}

func threat(p *combat.Participant) float64 {
	out := p.AttackPower
	if out < 1 {
		out = 1
	}
	return float64(p.Health) / float64(out)
}

// pickKind scores each affordable action kind and returns the best. Ties
// resolve in a fixed preference order so the choice stays deterministic.
func (s *Service) pickKind(snap *combat.Instance, actor, target *combat.Participant) combat.ActionKind {
	base := float64(actor.AttackPower + actor.SkillLevel*2 - target.Defense)
	if base < 0 {
		base = 0
	}

	best := combat.ActionAttack
	bestScore := s.weights.Damage * base

	if snap.LegalKind(actor, combat.ActionSkill) {
		score := s.weights.Damage*base*1.5 - s.weights.ResourceCost*float64(combat.SkillCost)
		if score > bestScore {
			best = combat.ActionSkill
			bestScore = score
		}
	}

	if snap.LegalKind(actor, combat.ActionDefend) && actor.Health*3 < actor.MaxHealth {
		score := s.weights.Utility * float64(actor.MaxHealth-actor.Health)
		if score > bestScore {
			best = combat.ActionDefend
		}
	}

	return best
}
