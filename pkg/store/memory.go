package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/alim08/cryptobook/pkg/models"
)

// Memory is an in-process RecordStore. It is durable only for the lifetime
// of the process and is meant for development and tests.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]*models.User
	order  []string
	nextID int64
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*models.User)}
}

// Create assigns the next identifier and stores a copy of u.
func (m *Memory) Create(ctx context.Context, u models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("create", err)
	}
	if u.UserName == "" {
		return nil, ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, Unavailable("create", errClosed)
	}

	m.nextID++
	u.ID = strconv.FormatInt(m.nextID, 10)
	stored := u
	m.byID[u.ID] = &stored
	m.order = append(m.order, u.ID)
	return stored.Clone(), nil
}

// FindAll returns copies of every user in creation order.
func (m *Memory) FindAll(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("find_all", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, Unavailable("find_all", errClosed)
	}

	out := make([]*models.User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id].Clone())
	}
	return out, nil
}

// FindByID returns ErrNotFound if no user has the identifier.
func (m *Memory) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("find_by_id", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, Unavailable("find_by_id", errClosed)
	}

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Unavailable("ping", errClosed)
	}
	return ctx.Err()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ RecordStore = (*Memory)(nil)
