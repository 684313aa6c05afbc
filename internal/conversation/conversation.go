// Package conversation stores the per-contact conversation record and its
// ordered message history.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("conversation not found")

// SystemMarker is prepended to every message the system sends. An outgoing
// message without it was written by a human.
const SystemMarker = "\u200B"

const (
	StatusActive      = "active"
	StatusTransferred = "transferred"
)

// Role is the direction of a message.
type Role string

const (
	RoleIncoming Role = "incoming"
	RoleOutgoing Role = "outgoing"
)

// Metadata types written by the pipeline.
const (
	MetaTypeAdminHandoff = "admin_handoff"
	MetaTypeLoopHandoff  = "loop_handoff"
	MetaTypeBypass       = "bypass"
	MetaTypeGenerated    = "generated"
	MetaTypeFallback     = "fallback"
	MetaTypeHuman        = "human"
	MetaTypeComment      = "comment"
	MetaTypeTransfer     = "transfer_notice"
)

type Conversation struct {
	ContactID     string     `json:"contactId"`
	LocationID    string     `json:"locationId"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	HumanActive   bool       `json:"humanActive"`
	LastHandoffAt *time.Time `json:"lastHandoffAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Message struct {
	ID        uuid.UUID         `json:"id"`
	ContactID string            `json:"contactId"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// SystemAuthored reports whether an outgoing message carries the system marker.
func (m Message) SystemAuthored() bool {
	return strings.HasPrefix(m.Content, SystemMarker)
}

// Text returns the content without the system marker.
func (m Message) Text() string {
	return strings.TrimPrefix(m.Content, SystemMarker)
}

// Store persists conversations and messages.
type Store interface {
	GetOrCreate(ctx context.Context, contactID, locationID, channel string) (Conversation, error)
	Get(ctx context.Context, contactID string) (Conversation, error)
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	// History returns the last limit messages, oldest first.
	History(ctx context.Context, contactID string, limit int) ([]Message, error)
	SetHumanActive(ctx context.Context, contactID string) error
	StampHandoff(ctx context.Context, contactID string, at time.Time) error
	// Migrate re-keys a conversation (and its lead state) to a new contact id
	// under another location. Re-running it after success is a no-op.
	Migrate(ctx context.Context, oldContactID, newContactID, toLocationID string) error
}

// LastOutbound returns the most recent outgoing message in history.
func LastOutbound(history []Message) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleOutgoing {
			return history[i], true
		}
	}
	return Message{}, false
}

// LastOutboundTexts returns up to n most recent outgoing texts, newest first.
func LastOutboundTexts(history []Message, n int) []string {
	out := make([]string, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == RoleOutgoing {
			out = append(out, history[i].Text())
		}
	}
	return out
}
