package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-hub/internal/application/broker"
	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/event"
	"github.com/arena-hub/arena-hub/internal/infrastructure/identity"
)

type nullSender struct {
	mu     sync.Mutex
	envs   []*event.Envelope
	closed bool
}

func (n *nullSender) Send(env *event.Envelope) bool {
	n.mu.Lock()
	n.envs = append(n.envs, env)
	n.mu.Unlock()
	return true
}

func (n *nullSender) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	return nil
}

func (n *nullSender) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *nullSender) byType(t event.Type) []*event.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*event.Envelope
	for _, env := range n.envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func newRegistry(t *testing.T) (*Service, *broker.Service, *identity.StaticVerifier) {
	t.Helper()
	b := broker.NewService(nil, zerolog.Nop())
	b.CreateChannel(channel.New(GlobalChannel, channel.KindGlobal))
	b.CreateChannel(channel.New(channel.ZoneID("starter_town"), channel.KindZone))

	verifier := identity.NewStaticVerifier()
	require.NoError(t, verifier.AddUser("alice", "hunter2"))

	svc := NewService(b, verifier, 120*time.Second, 5*time.Minute, zerolog.Nop())
	return svc, b, verifier
}

func TestRegisterAnonymous(t *testing.T) {
	svc, b, _ := newRegistry(t)

	sess, err := svc.Register(context.Background(), &nullSender{}, "")
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.Nil(t, sess.ActorID())
	assert.True(t, b.Subscribed(sess.SessionID, GlobalChannel))
}

func TestRegisterAuthenticated(t *testing.T) {
	svc, _, _ := newRegistry(t)

	sess, err := svc.Register(context.Background(), &nullSender{}, "alice:hunter2")
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
	require.NotNil(t, sess.ActorID())
	assert.Equal(t, identity.ActorID("alice"), *sess.ActorID())
}

func TestRegisterBadCredentialRejected(t *testing.T) {
	svc, _, _ := newRegistry(t)

	_, err := svc.Register(context.Background(), &nullSender{}, "alice:wrong")
	assert.ErrorIs(t, err, identity.ErrDenied)
	assert.Zero(t, svc.Stats().Total)
}

func TestRegisterPublishesPresence(t *testing.T) {
	svc, _, _ := newRegistry(t)
	ctx := context.Background()

	observer := &nullSender{}
	_, err := svc.Register(ctx, observer, "")
	require.NoError(t, err)

	_, err = svc.Register(ctx, &nullSender{}, "alice:hunter2")
	require.NoError(t, err)

	online := observer.byType(event.TypePresence)
	require.NotEmpty(t, online)
}

func TestAnonymousCannotJoinAuthChannels(t *testing.T) {
	svc, b, _ := newRegistry(t)
	guild := channel.New("guild:iron", channel.KindGuild)
	b.CreateChannel(guild)

	sess, err := svc.Register(context.Background(), &nullSender{}, "")
	require.NoError(t, err)

	err = svc.Subscribe(sess.SessionID, "guild:iron")
	assert.ErrorIs(t, err, channel.ErrUnauthorized)

	// Public zone channels stay open to anonymous sessions.
	assert.NoError(t, svc.Subscribe(sess.SessionID, channel.ZoneID("starter_town")))
}

func TestHeartbeatUnknownSession(t *testing.T) {
	svc, _, _ := newRegistry(t)
	assert.ErrorIs(t, svc.Heartbeat(uuid.New()), ErrSessionExpired)
}

func TestDeregisterCascades(t *testing.T) {
	svc, b, _ := newRegistry(t)

	sess, err := svc.Register(context.Background(), &nullSender{}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Subscribe(sess.SessionID, channel.ZoneID("starter_town")))

	svc.Deregister(sess.SessionID)

	assert.Nil(t, svc.Get(sess.SessionID))
	assert.False(t, b.Subscribed(sess.SessionID, GlobalChannel))
	assert.False(t, b.Subscribed(sess.SessionID, channel.ZoneID("starter_town")))
	assert.ErrorIs(t, svc.Heartbeat(sess.SessionID), ErrSessionExpired)
}

func TestRevalidateFailureTerminatesSession(t *testing.T) {
	svc, b, _ := newRegistry(t)

	sender := &nullSender{}
	sess, err := svc.Register(context.Background(), sender, "alice:hunter2")
	require.NoError(t, err)

	// Identity revoked: password changed upstream.
	err = svc.Revalidate(context.Background(), sess.SessionID, "alice:stale-password")
	require.ErrorIs(t, err, identity.ErrDenied)
	assert.Nil(t, svc.Get(sess.SessionID))
	assert.False(t, b.Subscribed(sess.SessionID, GlobalChannel))
	assert.True(t, sender.isClosed(), "revalidation failure must close the connection")
}

func TestRevalidateAnonymousIsNoOp(t *testing.T) {
	svc, _, _ := newRegistry(t)

	sess, err := svc.Register(context.Background(), &nullSender{}, "")
	require.NoError(t, err)
	assert.NoError(t, svc.Revalidate(context.Background(), sess.SessionID, ""))
	assert.NotNil(t, svc.Get(sess.SessionID))
}

func TestReapStale(t *testing.T) {
	b := broker.NewService(nil, zerolog.Nop())
	b.CreateChannel(channel.New(GlobalChannel, channel.KindGlobal))
	svc := NewService(b, identity.NewStaticVerifier(), 10*time.Millisecond, time.Minute, zerolog.Nop())

	sender := &nullSender{}
	sess, err := svc.Register(context.Background(), sender, "")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, svc.reapStale())
	assert.Nil(t, svc.Get(sess.SessionID))
	assert.True(t, sender.isClosed(), "reaping must close the connection")

	// A fresh heartbeat keeps the next session alive.
	sess2, err := svc.Register(context.Background(), &nullSender{}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Heartbeat(sess2.SessionID))
	assert.Zero(t, svc.reapStale())
}

func TestStats(t *testing.T) {
	svc, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &nullSender{}, "")
	require.NoError(t, err)
	_, err = svc.Register(ctx, &nullSender{}, "alice:hunter2")
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Authenticated)
	assert.Equal(t, 2, stats.Channels[GlobalChannel])
}
