package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/models"
)

// ErrNotFound is returned when no snapshot exists for the requested project.
var ErrNotFound = errors.New("snapshot not found")

// Store persists full project snapshots. Save replaces the previous snapshot
// atomically — after a crash the last durable snapshot is what Load returns,
// never a partial write.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context, id uuid.UUID) (*models.Snapshot, error)
	List(ctx context.Context) ([]uuid.UUID, error)
	Close() error
}
