// Package objection answers common sales objections from an immutable
// in-process snapshot of the objection playbook.
package objection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"leadfunnel_backend/platform/logger"
)

const (
	bookingNudge  = " ¿Te gustaría agendar tu cita para conocer todos los detalles?"
	noMatchAnswer = "Esa es una excelente pregunta. En la cita con tu asesor podrás resolver todas tus dudas. ¿Te gustaría agendar?"
)

type Entry struct {
	ID                uuid.UUID `json:"id" yaml:"-"`
	Category          string    `json:"category" yaml:"category" validate:"required"`
	Keywords          []string  `json:"keywords" yaml:"keywords" validate:"required,min=1,dive,required"`
	ResponseTemplate  string    `json:"responseTemplate" yaml:"response_template" validate:"required"`
	Priority          int       `json:"priority" yaml:"priority"`
	RedirectToBooking bool      `json:"redirectToBooking" yaml:"redirect_to_booking"`
	Active            bool      `json:"active" yaml:"active"`
}

// Loader reads the active playbook entries.
type Loader interface {
	LoadActive(ctx context.Context) ([]Entry, error)
}

// Snapshot is an immutable, priority-ordered view of the playbook.
type Snapshot struct {
	entries  []Entry
	loadedAt time.Time
}

// NewSnapshot orders entries by priority, highest first. Inactive entries are dropped.
func NewSnapshot(entries []Entry, loadedAt time.Time) *Snapshot {
	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Active {
			continue
		}
		kws := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		e.Keywords = kws
		active = append(active, e)
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
	return &Snapshot{entries: active, loadedAt: loadedAt}
}

// Len returns the number of active entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Match returns the highest-priority entry with a keyword contained in text.
func (s *Snapshot) Match(text string) (Entry, bool) {
	lower := strings.ToLower(text)
	for _, e := range s.entries {
		for _, k := range e.Keywords {
			if strings.Contains(lower, k) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Answer renders the reply for a topic, with the booking nudge when the entry asks for it.
func (s *Snapshot) Answer(topic string) string {
	e, ok := s.Match(topic)
	if !ok {
		return noMatchAnswer
	}
	if e.RedirectToBooking {
		return e.ResponseTemplate + bookingNudge
	}
	return e.ResponseTemplate
}

// Summary lists each category with up to three sample keywords.
func (s *Snapshot) Summary() string {
	seen := make(map[string]bool, len(s.entries))
	lines := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		sample := e.Keywords
		if len(sample) > 3 {
			sample = sample[:3]
		}
		lines = append(lines, fmt.Sprintf("- %s: (%s)", e.Category, strings.Join(sample, ", ")))
	}
	return strings.Join(lines, "\n")
}

// Cache holds the current snapshot. Readers never block; Refresh swaps in
// a new snapshot and coalesces concurrent callers.
type Cache struct {
	loader  Loader
	current atomic.Pointer[Snapshot]
	group   singleflight.Group
	log     *logger.Logger
}

// NewCache returns a cache holding an empty snapshot until the first Refresh.
func NewCache(loader Loader, log *logger.Logger) *Cache {
	c := &Cache{loader: loader, log: log}
	c.current.Store(NewSnapshot(nil, time.Time{}))
	return c
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Refresh reloads the playbook. On failure the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		entries, err := c.loader.LoadActive(ctx)
		if err != nil {
			return nil, err
		}
		snap := NewSnapshot(entries, time.Now())
		c.current.Store(snap)
		c.log.Info("objection playbook loaded", "entries", snap.Len())
		return snap, nil
	})
	if err != nil {
		c.log.Error("objection playbook refresh failed", "error", err)
		return c.Snapshot(), err
	}
	return v.(*Snapshot), nil
}
