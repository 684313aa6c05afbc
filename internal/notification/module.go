// Package notification turns funnel domain events into CRM side effects:
// tag updates, handoff notes and transfer retries. Domain modules publish
// events and never talk to the CRM about tags themselves.
package notification

import (
	"context"
	"fmt"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/scoring"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultRetryDelay = 30 * time.Second

// Tagger is the slice of the CRM client used for side effects.
type Tagger interface {
	AddTags(ctx context.Context, locationID, contactID string, tags ...string) error
	RemoveTags(ctx context.Context, locationID, contactID string, tags ...string) error
	AddNote(ctx context.Context, locationID, contactID, body string) error
}

// TransferQueue schedules a transfer resume on the worker.
type TransferQueue interface {
	EnqueueTransferResume(ctx context.Context, transferID string, delay time.Duration) error
}

// TransferResumer continues a transfer in-process when no queue is configured.
type TransferResumer interface {
	Resume(ctx context.Context, id uuid.UUID) (transfer.Transfer, error)
}

type Module struct {
	crm        Tagger
	queue      TransferQueue
	resumer    TransferResumer
	retryDelay time.Duration
	log        *logger.Logger
}

func New(crm Tagger, log *logger.Logger) *Module {
	return &Module{
		crm:        crm,
		retryDelay: defaultRetryDelay,
		log:        log,
	}
}

// SetTransferQueue routes retry requests to the worker queue.
func (m *Module) SetTransferQueue(q TransferQueue) { m.queue = q }

// SetTransferResumer resumes transfers inline when no queue is set.
func (m *Module) SetTransferResumer(r TransferResumer) { m.resumer = r }

func (m *Module) SetRetryDelay(d time.Duration) {
	if d > 0 {
		m.retryDelay = d
	}
}

// RegisterHandlers subscribes to the funnel events on the bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ScoreTierChanged{}.EventName(), m)
	bus.Subscribe(events.ContactTagged{}.EventName(), m)
	bus.Subscribe(events.HandoffTriggered{}.EventName(), m)
	bus.Subscribe(events.LeadTransferred{}.EventName(), m)
	bus.Subscribe(events.TransferRetryRequested{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ScoreTierChanged:
		return m.handleScoreTierChanged(ctx, e)
	case events.ContactTagged:
		return m.handleContactTagged(ctx, e)
	case events.HandoffTriggered:
		return m.handleHandoffTriggered(ctx, e)
	case events.LeadTransferred:
		m.log.Info("lead transferred",
			"transfer_id", e.TransferID,
			"old_contact_id", e.OldContactID,
			"new_contact_id", e.NewContactID,
			"to_location_id", e.ToLocationID,
		)
		return nil
	case events.TransferRetryRequested:
		return m.handleTransferRetryRequested(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// handleScoreTierChanged replaces every tier tag with the new one.
func (m *Module) handleScoreTierChanged(ctx context.Context, e events.ScoreTierChanged) error {
	tier, ok := scoring.ParseTier(e.NewTier)
	if !ok {
		return fmt.Errorf("unknown score tier %q", e.NewTier)
	}

	stale := make([]string, 0, len(scoring.AllTiers())-1)
	for _, tag := range scoring.AllTags() {
		if tag != tier.Tag() {
			stale = append(stale, tag)
		}
	}
	if err := m.crm.RemoveTags(ctx, e.LocationID, e.ContactID, stale...); err != nil {
		m.log.WithContact(e.ContactID, e.LocationID).ExternalCallFailed("crm", "remove_tags", 1, err)
		return err
	}
	if err := m.crm.AddTags(ctx, e.LocationID, e.ContactID, tier.Tag()); err != nil {
		m.log.WithContact(e.ContactID, e.LocationID).ExternalCallFailed("crm", "add_tags", 1, err)
		return err
	}
	return nil
}

func (m *Module) handleContactTagged(ctx context.Context, e events.ContactTagged) error {
	if e.Tag == "" {
		return nil
	}
	if err := m.crm.AddTags(ctx, e.LocationID, e.ContactID, e.Tag); err != nil {
		m.log.WithContact(e.ContactID, e.LocationID).ExternalCallFailed("crm", "add_tags", 1, err)
		return err
	}
	return nil
}

// handleHandoffTriggered leaves a note for the human picking up the contact.
func (m *Module) handleHandoffTriggered(ctx context.Context, e events.HandoffTriggered) error {
	body := fmt.Sprintf("Conversación transferida a un asesor (regla: %s).", e.Rule)
	if e.Sticky {
		body += " Las respuestas automáticas quedan desactivadas para este contacto."
	}
	if err := m.crm.AddNote(ctx, e.LocationID, e.ContactID, body); err != nil {
		m.log.WithContact(e.ContactID, e.LocationID).ExternalCallFailed("crm", "add_note", 1, err)
		return err
	}
	return nil
}

func (m *Module) handleTransferRetryRequested(ctx context.Context, e events.TransferRetryRequested) error {
	if m.queue != nil {
		return m.queue.EnqueueTransferResume(ctx, e.TransferID, m.retryDelay)
	}
	if m.resumer == nil {
		m.log.Warn("transfer retry dropped, no resumer configured", "transfer_id", e.TransferID)
		return nil
	}

	id, err := uuid.Parse(e.TransferID)
	if err != nil {
		return fmt.Errorf("parse transfer id: %w", err)
	}

	timer := time.NewTimer(m.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	t, err := m.resumer.Resume(ctx, id)
	if err != nil {
		m.log.Warn("transfer resume failed", "transfer_id", id, "status", t.Status, "error", err)
		return nil
	}
	m.log.Info("transfer resumed", "transfer_id", id, "status", t.Status)
	return nil
}
