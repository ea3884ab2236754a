package combat

import (
	"github.com/google/uuid"
)

// Side places a participant in the encounter.
type Side string

const (
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
	SideRaid     Side = "raid"
	SideBoss     Side = "boss"
)

// Effect is a temporary status applied by action resolution. Each effect
// carries the turn number at which it expires.
type Effect string

const (
	// EffectDefending halves incoming damage until the participant's next turn.
	EffectDefending Effect = "defending"
	// EffectWeakened reduces outgoing damage while active.
	EffectWeakened Effect = "weakened"
	// EffectEnraged marks a raid boss in a late phase.
	EffectEnraged Effect = "enraged"
)

// Participant is one actor inside a combat instance. It is owned by the
// instance and mutated only through action resolution.
type Participant struct {
	ActorID     uuid.UUID      `json:"actorId"`
	Name        string         `json:"name"`
	Side        Side           `json:"side"`
	Health      int            `json:"health"`
	MaxHealth   int            `json:"maxHealth"`
	Resource    int            `json:"resource"`
	MaxResource int            `json:"maxResource"`
	AttackPower int            `json:"attackPower"`
	Defense     int            `json:"defense"`
	SkillLevel  int            `json:"skillLevel"`
	Effects     map[Effect]int `json:"effects,omitempty"`
	AutoCombat  bool           `json:"autoCombat"`
	Connected   bool           `json:"connected"`
}

// Alive reports whether the participant can still act or be targeted.
func (p *Participant) Alive() bool {
	return p.Health > 0
}

// HasEffect reports whether an effect is active at the given turn.
func (p *Participant) HasEffect(effect Effect, turn int) bool {
	expiry, ok := p.Effects[effect]
	return ok && turn <= expiry
}

// ApplyEffect sets an effect with an expiry turn.
func (p *Participant) ApplyEffect(effect Effect, expiryTurn int) {
	if p.Effects == nil {
		p.Effects = make(map[Effect]int)
	}
	p.Effects[effect] = expiryTurn
}

// ExpireEffects drops effects whose expiry turn has passed.
func (p *Participant) ExpireEffects(turn int) {
	for effect, expiry := range p.Effects {
		if turn > expiry {
			delete(p.Effects, effect)
		}
	}
}

// Hostile reports whether two sides oppose each other.
func Hostile(a, b Side) bool {
	switch a {
	case SideAttacker:
		return b == SideDefender
	case SideDefender:
		return b == SideAttacker
	case SideRaid:
		return b == SideBoss
	case SideBoss:
		return b == SideRaid
	default:
		return false
	}
}

// Clone returns a deep copy, used when building decision snapshots.
func (p *Participant) Clone() *Participant {
	cp := *p
	if p.Effects != nil {
		cp.Effects = make(map[Effect]int, len(p.Effects))
		for k, v := range p.Effects {
			cp.Effects[k] = v
		}
	}
	return &cp
}
