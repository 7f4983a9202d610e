package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/codec"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	clock clock.Clock
	hub   *hub
	docs  map[string]map[string]Record // collection -> id -> record
	order map[string][]string          // collection -> ids in creation order
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock.OrReal(clk),
		hub:   newHub(),
		docs:  map[string]map[string]Record{},
		order: map[string][]string{},
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error) {
	if err := checkAuth(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub.subscribe(ctx, collection, s.snapshotLocked(collection)), nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc any) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	data, err := codec.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(collection, id, data)
	s.hub.publish(s.snapshotLocked(collection))
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	data, err := codec.Merge(rec.Data, partial)
	if err != nil {
		return err
	}
	s.putLocked(collection, id, data)
	s.hub.publish(s.snapshotLocked(collection))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.docs[collection], id)
	ids := s.order[collection]
	for i, v := range ids {
		if v == id {
			s.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	s.hub.publish(s.snapshotLocked(collection))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := checkAuth(ctx); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Record, error) {
	if err := checkAuth(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(collection).Records, nil
}

func (s *MemoryStore) putLocked(collection, id string, data []byte) {
	now := s.clock.Now().UTC()
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]Record{}
	}
	rec, exists := s.docs[collection][id]
	if !exists {
		rec = Record{ID: id, CreatedAt: now}
		s.order[collection] = append(s.order[collection], id)
	}
	rec.Data = data
	rec.UpdatedAt = now
	s.docs[collection][id] = rec
}

func (s *MemoryStore) snapshotLocked(collection string) Snapshot {
	ids := s.order[collection]
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.docs[collection][id])
	}
	return Snapshot{Collection: collection, Records: records}
}
