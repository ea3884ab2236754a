package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	instanceID := uuid.New()
	env, err := New(TypeTurnResolved, "combat:"+instanceID.String(), 7, map[string]int{"turn": 3})
	require.NoError(t, err)
	env.InstanceID = &instanceID
	env.Origin = "proc-a"

	data, err := env.Encode()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, env.Type, decoded.Type)
	assert.Equal(t, env.Channel, decoded.Channel)
	assert.Equal(t, uint64(7), decoded.Sequence)
	assert.Equal(t, "proc-a", decoded.Origin)
	require.NotNil(t, decoded.InstanceID)
	assert.Equal(t, instanceID, *decoded.InstanceID)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestDeduperFreshness(t *testing.T) {
	d := NewDeduper()
	instanceID := uuid.New()

	env := func(seq uint64) *Envelope {
		return &Envelope{Type: TypeTurnResolved, Sequence: seq, InstanceID: &instanceID}
	}

	assert.True(t, d.Fresh(env(1)))
	assert.True(t, d.Fresh(env(2)))
	assert.False(t, d.Fresh(env(2)), "duplicate sequence must be stale")
	assert.False(t, d.Fresh(env(1)), "older sequence must be stale")
	assert.True(t, d.Fresh(env(5)), "gaps are fine; only monotonicity matters")
}

func TestDeduperInstancelessAlwaysFresh(t *testing.T) {
	d := NewDeduper()
	chat := &Envelope{Type: TypeChat, Sequence: 0}
	assert.True(t, d.Fresh(chat))
	assert.True(t, d.Fresh(chat))
}

func TestDeduperForget(t *testing.T) {
	d := NewDeduper()
	instanceID := uuid.New()
	env := &Envelope{Type: TypeCombatEnded, Sequence: 9, InstanceID: &instanceID}

	require.True(t, d.Fresh(env))
	require.False(t, d.Fresh(env))
	d.Forget(instanceID)
	assert.True(t, d.Fresh(env))
}
