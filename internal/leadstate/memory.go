package leadstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used by tests and single-node runs.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, contactID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[contactID]
	if !ok {
		return State{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetOrCreate(_ context.Context, contactID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(contactID), nil
}

func (m *MemoryStore) Update(_ context.Context, contactID string, partial Captured) (State, error) {
	return m.mutate(contactID, func(s *State, now time.Time) {
		s.apply(partial, now)
	})
}

func (m *MemoryStore) MarkLeadForm(_ context.Context, contactID string) (State, error) {
	return m.mutate(contactID, func(s *State, now time.Time) {
		if !s.FromLeadForm {
			s.FromLeadForm = true
			s.UpdatedAt = now
		}
	})
}

func (m *MemoryStore) MarkBookingSent(_ context.Context, contactID string, at time.Time) (State, error) {
	return m.mutate(contactID, func(s *State, now time.Time) {
		if s.BookingSentAt == nil {
			t := at
			s.BookingSentAt = &t
			s.UpdatedAt = now
		}
	})
}

func (m *MemoryStore) IncrementPostBookingCount(_ context.Context, contactID string) (State, error) {
	return m.mutate(contactID, func(s *State, now time.Time) {
		s.PostBookingCount++
		s.UpdatedAt = now
	})
}

func (m *MemoryStore) SetScore(_ context.Context, contactID string, score int, tier string) (State, error) {
	return m.mutate(contactID, func(s *State, now time.Time) {
		s.Score = score
		s.ScoreTier = tier
		s.UpdatedAt = now
	})
}

func (m *MemoryStore) Delete(_ context.Context, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, contactID)
	return nil
}

// Rekey moves a state to a new contact id, replacing any state already there.
func (m *MemoryStore) Rekey(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[oldID]
	if !ok {
		return nil
	}
	delete(m.states, oldID)
	s.ContactID = newID
	m.states[newID] = s
	return nil
}

func (m *MemoryStore) mutate(contactID string, fn func(*State, time.Time)) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.loadLocked(contactID)
	fn(&s, m.now())
	m.states[contactID] = s
	return s, nil
}

func (m *MemoryStore) loadLocked(contactID string) State {
	s, ok := m.states[contactID]
	if !ok {
		s = New(contactID, m.now())
		m.states[contactID] = s
	}
	return s
}

var _ Store = (*MemoryStore)(nil)
