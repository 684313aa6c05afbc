package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdvisorStore is an in-process AdvisorStore.
type MemoryAdvisorStore struct {
	mu       sync.Mutex
	advisors []Advisor
	now      func() time.Time
}

func NewMemoryAdvisorStore(advisors ...Advisor) *MemoryAdvisorStore {
	m := &MemoryAdvisorStore{now: time.Now}
	for _, a := range advisors {
		_, _ = m.Upsert(context.Background(), a)
	}
	return m
}

func (m *MemoryAdvisorStore) NextForLocation(_ context.Context, locationID string) (Advisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := make([]int, 0, len(m.advisors))
	for i, a := range m.advisors {
		if a.LocationID == locationID && a.Active {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return Advisor{}, ErrNoAdvisorAvailable
	}
	sort.SliceStable(idx, func(x, y int) bool {
		a, b := m.advisors[idx[x]], m.advisors[idx[y]]
		if a.AssignedCount != b.AssignedCount {
			return a.AssignedCount < b.AssignedCount
		}
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.LastAssignedAt == nil:
			return true
		case b.LastAssignedAt == nil:
			return false
		}
		return a.LastAssignedAt.Before(*b.LastAssignedAt)
	})

	chosen := &m.advisors[idx[0]]
	now := m.now()
	chosen.AssignedCount++
	chosen.LastAssignedAt = &now
	return *chosen, nil
}

func (m *MemoryAdvisorStore) FindByCRMUser(_ context.Context, locationID, crmUserID string) (Advisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.advisors {
		if a.LocationID == locationID && a.CRMUserID == crmUserID && a.Active {
			return a, nil
		}
	}
	return Advisor{}, ErrAdvisorNotFound
}

func (m *MemoryAdvisorStore) ListByLocation(_ context.Context, locationID string) ([]Advisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Advisor, 0)
	for _, a := range m.advisors {
		if locationID == "" || a.LocationID == locationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryAdvisorStore) Upsert(_ context.Context, a Advisor) (Advisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.advisors {
		if existing.LocationID == a.LocationID && existing.BookingLink == a.BookingLink {
			existing.Name = a.Name
			existing.CRMUserID = a.CRMUserID
			existing.Active = a.Active
			m.advisors[i] = existing
			return existing, nil
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		// Spread creation times so ties resolve in insertion order.
		a.CreatedAt = m.now().Add(time.Duration(len(m.advisors)) * time.Nanosecond)
	}
	m.advisors = append(m.advisors, a)
	return a, nil
}

var _ AdvisorStore = (*MemoryAdvisorStore)(nil)
