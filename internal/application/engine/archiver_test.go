package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/arena-hub/arena-hub/internal/domain/combat"
	"github.com/arena-hub/arena-hub/internal/domain/combat/mocks"
)

func terminalInstance(t *testing.T) *combat.Instance {
	t.Helper()
	inst, err := combat.NewInstance(combat.KindDuel, []*combat.Participant{
		{ActorID: uuid.New(), Side: combat.SideAttacker, Health: 100},
		{ActorID: uuid.New(), Side: combat.SideDefender, Health: 0},
	})
	require.NoError(t, err)
	inst.ActionLog = []combat.LogEntry{{Turn: 1, Kind: combat.ActionAttack, Damage: 100}}
	inst.Complete(combat.SideAttacker)
	return inst
}

func TestArchiverWritesInstanceAndLog(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockArchiveRepository(ctrl)
	inst := terminalInstance(t)

	saved := make(chan struct{})
	repo.EXPECT().SaveInstance(gomock.Any(), inst).Return(nil)
	repo.EXPECT().SaveLog(gomock.Any(), inst.ID, inst.ActionLog).DoAndReturn(
		func(context.Context, uuid.UUID, []combat.LogEntry) error {
			close(saved)
			return nil
		})

	a := NewArchiver(repo, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Enqueue(inst)
	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("archive write never happened")
	}
}

func TestArchiverNilRepoIsNoOp(t *testing.T) {
	a := NewArchiver(nil, 1, zerolog.Nop())
	// Must not block or panic even without a consumer.
	for i := 0; i < 10; i++ {
		a.Enqueue(terminalInstance(t))
	}
}

func TestArchiverFullQueueDrops(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockArchiveRepository(ctrl)

	// No consumer running: the second enqueue must drop, not block.
	a := NewArchiver(repo, 1, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		a.Enqueue(terminalInstance(t))
		a.Enqueue(terminalInstance(t))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
