package combat

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . ArchiveRepository

import (
	"context"

	"github.com/google/uuid"
)

// ArchiveRepository persists finished instances and their action logs.
// Resolution never blocks on it; terminal instances are handed off to an
// async writer.
type ArchiveRepository interface {
	SaveInstance(ctx context.Context, instance *Instance) error
	SaveLog(ctx context.Context, instanceID uuid.UUID, entries []LogEntry) error
	GetInstance(ctx context.Context, instanceID uuid.UUID) (*Instance, error)
}
