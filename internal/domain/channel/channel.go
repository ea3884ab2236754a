package channel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies a broadcast channel.
type Kind string

const (
	KindGlobal  Kind = "global"
	KindGuild   Kind = "guild"
	KindParty   Kind = "party"
	KindZone    Kind = "zone"
	KindPrivate Kind = "private"
	KindCombat  Kind = "combat"
)

// Visibility controls who may subscribe.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityAuth       Visibility = "requires-auth"
	VisibilityMembership Visibility = "requires-membership"
)

var (
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("channel membership required")
	ErrNotFound     = errors.New("channel not found")
)

// Channel is a named broadcast scope. Structural channels (global, zone)
// live for the process lifetime; combat and party channels are destroyed
// with their owning instance.
type Channel struct {
	ID              string
	Kind            Kind
	Visibility      Visibility
	OwnerInstanceID *uuid.UUID
	Members         map[uuid.UUID]struct{}
}

// New creates a channel with the default visibility for its kind.
func New(id string, kind Kind) *Channel {
	return &Channel{
		ID:         id,
		Kind:       kind,
		Visibility: defaultVisibility(kind),
	}
}

// NewCombat creates the combat channel owned by one instance.
func NewCombat(instanceID uuid.UUID) *Channel {
	ch := New(CombatID(instanceID), KindCombat)
	ch.OwnerInstanceID = &instanceID
	return ch
}

// CombatID derives the channel ID for a combat instance.
func CombatID(instanceID uuid.UUID) string {
	return fmt.Sprintf("combat:%s", instanceID)
}

// ZoneID derives the channel ID for a world zone.
func ZoneID(zone string) string {
	return fmt.Sprintf("zone:%s", zone)
}

func defaultVisibility(kind Kind) Visibility {
	switch kind {
	case KindGlobal, KindZone:
		return VisibilityPublic
	case KindGuild, KindParty, KindPrivate, KindCombat:
		return VisibilityMembership
	default:
		return VisibilityAuth
	}
}

// KindOf infers the kind from a channel ID prefix. Unprefixed IDs are
// treated as global-style public channels.
func KindOf(id string) Kind {
	switch {
	case id == "global":
		return KindGlobal
	case strings.HasPrefix(id, "zone:"):
		return KindZone
	case strings.HasPrefix(id, "guild:"):
		return KindGuild
	case strings.HasPrefix(id, "party:"):
		return KindParty
	case strings.HasPrefix(id, "private:"):
		return KindPrivate
	case strings.HasPrefix(id, "combat:"):
		return KindCombat
	default:
		return KindGlobal
	}
}

// Authorize checks whether an identity (nil for anonymous) may subscribe.
// It never mutates channel state.
func (c *Channel) Authorize(actorID *uuid.UUID) error {
	switch c.Visibility {
	case VisibilityPublic:
		return nil
	case VisibilityAuth:
		if actorID == nil {
			return ErrUnauthorized
		}
		return nil
	case VisibilityMembership:
		if actorID == nil {
			return ErrUnauthorized
		}
		if _, ok := c.Members[*actorID]; !ok {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// Grant adds an actor to the channel membership.
func (c *Channel) Grant(actorID uuid.UUID) {
	if c.Members == nil {
		c.Members = make(map[uuid.UUID]struct{})
	}
	c.Members[actorID] = struct{}{}
}
