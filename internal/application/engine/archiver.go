package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

// Archiver hands terminal instances off to the persistence store without
// blocking resolution. Enqueue is non-blocking; a full buffer drops the
// archive write and logs it.
type Archiver struct {
	repo   combat.ArchiveRepository
	queue  chan *combat.Instance
	logger zerolog.Logger
}

// NewArchiver creates an archiver with a bounded queue. repo may be nil in
// tests or store-less deployments; archival then becomes a no-op.
func NewArchiver(repo combat.ArchiveRepository, buffer int, logger zerolog.Logger) *Archiver {
	if buffer <= 0 {
		buffer = 64
	}
	return &Archiver{
		repo:   repo,
		queue:  make(chan *combat.Instance, buffer),
		logger: logger.With().Str("service", "archiver").Logger(),
	}
}

// Enqueue submits a terminal instance for archival. Never blocks.
func (a *Archiver) Enqueue(inst *combat.Instance) {
	if a.repo == nil {
		return
	}
	select {
	case a.queue <- inst:
	default:
		a.logger.Warn().Str("instance_id", inst.ID.String()).Msg("archive queue full; dropping archive write")
	}
}

// Run consumes the queue until ctx is done.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case inst := <-a.queue:
			a.write(inst)
		}
	}
}

func (a *Archiver) write(inst *combat.Instance) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.repo.SaveInstance(ctx, inst); err != nil {
		a.logger.Warn().Err(err).Str("instance_id", inst.ID.String()).Msg("archive instance failed")
		return
	}
	if err := a.repo.SaveLog(ctx, inst.ID, inst.ActionLog); err != nil {
		a.logger.Warn().Err(err).Str("instance_id", inst.ID.String()).Msg("archive action log failed")
	}
}
