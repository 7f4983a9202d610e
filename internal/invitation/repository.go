package invitation

import (
	"context"
	"errors"
	"sync"

	"github.com/codelits/invoice-manager/internal/docstore"
)

// MemoryRepository keeps invitations in memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]Invitation
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: map[string]Invitation{}}
}

func (m *MemoryRepository) Get(_ context.Context, email string) (Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.entries[email]
	if !ok {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (m *MemoryRepository) Put(_ context.Context, inv Invitation) error {
	m.mu.Lock()
	m.entries[inv.Email] = inv
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Invitation, 0, len(m.entries))
	for _, inv := range m.entries {
		out = append(out, inv)
	}
	return out, nil
}

// DocRepository stores invitations in the invitations collection, one
// document per email.
type DocRepository struct {
	store docstore.Store
}

// NewDocRepository creates a repository over store.
func NewDocRepository(store docstore.Store) *DocRepository {
	return &DocRepository{store: store}
}

func (d *DocRepository) Get(ctx context.Context, email string) (Invitation, error) {
	rec, err := d.store.Get(ctx, docstore.Invitations, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return Invitation{}, ErrNotFound
	}
	if err != nil {
		return Invitation{}, err
	}
	var inv Invitation
	if err := rec.Decode(&inv); err != nil {
		return Invitation{}, err
	}
	inv.Email = rec.ID
	return inv, nil
}

func (d *DocRepository) Put(ctx context.Context, inv Invitation) error {
	return d.store.Set(ctx, docstore.Invitations, inv.Email, inv)
}

func (d *DocRepository) List(ctx context.Context) ([]Invitation, error) {
	recs, err := d.store.List(ctx, docstore.Invitations)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll(recs, func(inv *Invitation, id string) { inv.Email = id })
}
