// Package transfer moves a contact to another location's CRM account.
// Progress is persisted after every step so a failed transfer resumes where
// it stopped instead of creating a second contact.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("transfer not found")

type Status string

const (
	StatusPending        Status = "pending"
	StatusContactCreated Status = "contact_created"
	StatusMigrated       Status = "migrated"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

type Transfer struct {
	ID             uuid.UUID `json:"id"`
	OldContactID   string    `json:"oldContactId"`
	NewContactID   string    `json:"newContactId,omitempty"`
	FromLocationID string    `json:"fromLocationId"`
	ToLocationID   string    `json:"toLocationId"`
	Channel        string    `json:"channel"`
	Status         Status    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Done reports whether the contact already lives in the target location.
func (t Transfer) Done() bool {
	return t.Status == StatusCompleted
}

// Migrated reports whether the conversation is already keyed to the new contact.
func (t Transfer) Migrated() bool {
	return t.Status == StatusMigrated || t.Status == StatusCompleted
}

// resumeStatus is the step a failed transfer restarts from. Migration is
// idempotent, so a transfer with a contact always restarts there.
func (t Transfer) resumeStatus() Status {
	if t.Status != StatusFailed {
		return t.Status
	}
	if t.NewContactID == "" {
		return StatusPending
	}
	return StatusContactCreated
}

// Store persists transfer progress.
type Store interface {
	// Open returns the transfer for (oldContactID, toLocationID), creating a
	// pending one when none exists.
	Open(ctx context.Context, t Transfer) (Transfer, error)
	Get(ctx context.Context, id uuid.UUID) (Transfer, error)
	Save(ctx context.Context, t Transfer) error
	// ListUnfinished returns transfers still in progress, oldest first.
	// Failed transfers are left for an operator retry.
	ListUnfinished(ctx context.Context, limit int) ([]Transfer, error)
}
