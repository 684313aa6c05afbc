// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadfunnel_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Funnel Domain Events
// =============================================================================

// ScoreTierChanged is published when a contact's score crosses into another tier.
// Subscribers replace the tier tag on the CRM contact.
type ScoreTierChanged struct {
	BaseEvent
	ContactID  string `json:"contactId"`
	LocationID string `json:"locationId"`
	Score      int    `json:"score"`
	OldTier    string `json:"oldTier"`
	NewTier    string `json:"newTier"`
}

func (e ScoreTierChanged) EventName() string { return "funnel.score.tier_changed" }

// HandoffTriggered is published when the pipeline hands a contact over to a human.
type HandoffTriggered struct {
	BaseEvent
	ContactID  string `json:"contactId"`
	LocationID string `json:"locationId"`
	Rule       string `json:"rule"`
	Sticky     bool   `json:"sticky"`
}

func (e HandoffTriggered) EventName() string { return "funnel.handoff.triggered" }

// ContactTagged is published for every tag the pipeline decides to add.
type ContactTagged struct {
	BaseEvent
	ContactID  string `json:"contactId"`
	LocationID string `json:"locationId"`
	Tag        string `json:"tag"`
}

func (e ContactTagged) EventName() string { return "funnel.contact.tagged" }

// LeadTransferred is published after a contact moved to another location.
type LeadTransferred struct {
	BaseEvent
	TransferID     string `json:"transferId"`
	OldContactID   string `json:"oldContactId"`
	NewContactID   string `json:"newContactId"`
	FromLocationID string `json:"fromLocationId"`
	ToLocationID   string `json:"toLocationId"`
}

func (e LeadTransferred) EventName() string { return "funnel.lead.transferred" }

// TransferRetryRequested is published when a transfer stopped after its contact step
// and must resume from the migration step.
type TransferRetryRequested struct {
	BaseEvent
	TransferID string `json:"transferId"`
}

func (e TransferRetryRequested) EventName() string { return "funnel.transfer.retry_requested" }
