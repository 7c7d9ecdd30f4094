package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/renlei/mvstudio/internal/models"
	"github.com/renlei/mvstudio/internal/store"
)

// Manager hands out one Pipeline per project, loading snapshots on demand.
// All API handlers and workers share the same manager so a project is only
// ever driven through one in-memory pipeline at a time.
type Manager struct {
	mu    sync.Mutex
	store store.Store
	live  map[uuid.UUID]*Pipeline
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		store: st,
		live:  map[uuid.UUID]*Pipeline{},
	}
}

// Create starts a new project in CREATED and registers its pipeline.
func (m *Manager) Create(ctx context.Context, data models.ProjectData) (*Pipeline, error) {
	p, err := NewProject(ctx, m.store, data)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.live[p.ID()] = p
	m.mu.Unlock()
	return p, nil
}

// Get returns the live pipeline for id, hydrating it from the store on first
// access after a restart.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.live[id]; ok {
		return p, nil
	}

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}

	p := New(m.store, *snap)
	m.live[id] = p
	return p, nil
}

// List returns the ids of every persisted project.
func (m *Manager) List(ctx context.Context) ([]uuid.UUID, error) {
	return m.store.List(ctx)
}
