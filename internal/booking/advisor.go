package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoAdvisorAvailable means the location has no active advisor. Callers
	// fall back to a location-level default link.
	ErrNoAdvisorAvailable = errors.New("no active advisor for location")
	ErrAdvisorNotFound    = errors.New("advisor not found")
)

type Advisor struct {
	ID             uuid.UUID  `json:"id" yaml:"-"`
	LocationID     string     `json:"locationId" yaml:"location_id" validate:"required"`
	Name           string     `json:"name" yaml:"name" validate:"required"`
	BookingLink    string     `json:"bookingLink" yaml:"booking_link" validate:"required,url"`
	CRMUserID      string     `json:"crmUserId" yaml:"crm_user_id"`
	Active         bool       `json:"active" yaml:"active"`
	AssignedCount  int        `json:"assignedCount" yaml:"-"`
	LastAssignedAt *time.Time `json:"lastAssignedAt,omitempty" yaml:"-"`
	CreatedAt      time.Time  `json:"createdAt" yaml:"-"`
}

// AdvisorStore persists advisors and their round-robin counters.
type AdvisorStore interface {
	// NextForLocation picks the active advisor with the lowest assignment
	// count (oldest assignment first on ties), increments its counter and
	// stamps it, atomically.
	NextForLocation(ctx context.Context, locationID string) (Advisor, error)
	FindByCRMUser(ctx context.Context, locationID, crmUserID string) (Advisor, error)
	ListByLocation(ctx context.Context, locationID string) ([]Advisor, error)
	// Upsert inserts an advisor or updates name, user id and active flag of
	// the one with the same location and link.
	Upsert(ctx context.Context, a Advisor) (Advisor, error)
}
