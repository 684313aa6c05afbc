package transfer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]Transfer
	byKey map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]Transfer),
		byKey: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Open(_ context.Context, t Transfer) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.OldContactID + "|" + t.ToLocationID
	if id, ok := s.byKey[key]; ok {
		return s.byID[id], nil
	}
	now := time.Now()
	t.ID = uuid.New()
	t.Status = StatusPending
	t.CreatedAt = now
	t.UpdatedAt = now
	s.byID[t.ID] = t
	s.byKey[key] = t.ID
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Save(_ context.Context, t Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now()
	s.byID[t.ID] = t
	return nil
}

func (s *MemoryStore) ListUnfinished(_ context.Context, limit int) ([]Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transfer, 0)
	for _, t := range s.byID {
		if t.Status != StatusCompleted && t.Status != StatusFailed {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
