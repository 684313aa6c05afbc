package leadstate

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("lead state not found")

// Store persists lead states. Every mutation is atomic per contact and
// returns the state as written.
type Store interface {
	Get(ctx context.Context, contactID string) (State, error)
	GetOrCreate(ctx context.Context, contactID string) (State, error)
	Update(ctx context.Context, contactID string, partial Captured) (State, error)
	MarkLeadForm(ctx context.Context, contactID string) (State, error)
	MarkBookingSent(ctx context.Context, contactID string, at time.Time) (State, error)
	IncrementPostBookingCount(ctx context.Context, contactID string) (State, error)
	SetScore(ctx context.Context, contactID string, score int, tier string) (State, error)
	Delete(ctx context.Context, contactID string) error
}
