package combat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionKind is the set of submittable turn actions.
type ActionKind string

const (
	ActionAttack ActionKind = "attack"
	ActionDefend ActionKind = "defend"
	ActionSkill  ActionKind = "skill"
	// ActionPass is the implicit action resolved on turn timeout. Clients
	// may also submit it directly.
	ActionPass ActionKind = "pass"
)

// SkillCost is the resource spent per skill use.
const SkillCost = 10

// Action is a submitted turn action. It is immutable once accepted;
// rejected actions are never stored.
type Action struct {
	ActorID    uuid.UUID       `json:"actorId"`
	InstanceID uuid.UUID       `json:"instanceId"`
	Turn       int             `json:"turn"`
	Kind       ActionKind      `json:"kind"`
	TargetID   *uuid.UUID      `json:"targetId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Cost returns the resource cost of an action kind.
func (k ActionKind) Cost() int {
	if k == ActionSkill {
		return SkillCost
	}
	return 0
}

// Targeted reports whether the action kind requires a target.
func (k ActionKind) Targeted() bool {
	return k == ActionAttack || k == ActionSkill
}

// Valid reports whether the kind is one a client may submit.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAttack, ActionDefend, ActionSkill, ActionPass:
		return true
	default:
		return false
	}
}

// LogEntry is one resolved action in an instance's append-only log. Seed
// and Roll are recorded so any resolution can be replayed exactly.
type LogEntry struct {
	Turn       int        `json:"turn"`
	ActorID    uuid.UUID  `json:"actorId"`
	Kind       ActionKind `json:"kind"`
	TargetID   *uuid.UUID `json:"targetId,omitempty"`
	Seed       int64      `json:"seed"`
	Roll       int        `json:"roll"`
	Damage     int        `json:"damage"`
	Timeout    bool       `json:"timeout,omitempty"`
	ResolvedAt time.Time  `json:"resolvedAt"`
}
