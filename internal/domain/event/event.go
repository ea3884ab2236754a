package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of broadcast event.
type Type string

const (
	TypeWelcome       Type = "welcome"
	TypeChat          Type = "chat"
	TypePresence      Type = "presence"
	TypeHeartbeat     Type = "heartbeat"
	TypeTurnResolved  Type = "turn_resolved"
	TypeCombatStarted Type = "combat_started"
	TypeCombatEnded   Type = "combat_ended"
	TypePhaseChanged  Type = "phase_changed"
	TypeError         Type = "error"
)

// Envelope is the wire format for every broadcast event.
// Sequence is monotonic per instance so cross-process receivers can
// discard stale or duplicate deliveries.
type Envelope struct {
	Type       Type            `json:"type"`
	Channel    string          `json:"channel"`
	Sequence   uint64          `json:"sequence"`
	InstanceID *uuid.UUID      `json:"instanceId,omitempty"`
	// Origin identifies the publishing process so loopback deliveries from
	// the bus can be discarded.
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds an envelope stamped with the current UTC time.
func New(t Type, channel string, seq uint64, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{
		Type:      t,
		Channel:   channel,
		Sequence:  seq,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope received from the bus or a client.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Deduper tracks the highest sequence seen per instance. Delivery from the
// bus is at-least-once, so consumers filter through a Deduper before fan-out.
type Deduper struct {
	seen map[uuid.UUID]uint64
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[uuid.UUID]uint64)}
}

// Fresh reports whether the envelope advances the per-instance sequence.
// Envelopes without an instance (chat, presence) are always fresh.
func (d *Deduper) Fresh(e *Envelope) bool {
	if e.InstanceID == nil {
		return true
	}
	last, ok := d.seen[*e.InstanceID]
	if ok && e.Sequence <= last {
		return false
	}
	d.seen[*e.InstanceID] = e.Sequence
	return true
}

// Forget drops dedupe state for an archived instance.
func (d *Deduper) Forget(instanceID uuid.UUID) {
	delete(d.seen, instanceID)
}
