package orchestrator

import (
	"strings"
	"time"

	"leadfunnel_backend/internal/leadstate"
)

// Channels as normalized by the webhook layer.
const (
	ChannelWhatsApp = "WhatsApp"
	ChannelSMS      = "SMS"
	ChannelFacebook = "FB"
	ChannelIG       = "IG"
	ChannelGMB      = "GMB"
	ChannelComment  = "Comentario"
)

// Inbound is one normalized conversational message.
type Inbound struct {
	ID           string             `json:"id" validate:"required"`
	ContactID    string             `json:"contactId" validate:"required"`
	LocationID   string             `json:"locationId" validate:"required"`
	Channel      string             `json:"channel" validate:"required"`
	Text         string             `json:"text" validate:"required"`
	FullName     string             `json:"fullName,omitempty"`
	Source       string             `json:"source,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	FormData     leadstate.Captured `json:"formData"`
	FromLeadForm bool               `json:"fromLeadForm"`
	// SenderPhone is the WhatsApp/SMS number the message came from.
	SenderPhone string `json:"senderPhone,omitempty"`
}

// Outbound is an outgoing message reported back by the CRM.
type Outbound struct {
	ID         string    `json:"id" validate:"required"`
	ContactID  string    `json:"contactId" validate:"required"`
	LocationID string    `json:"locationId" validate:"required"`
	Channel    string    `json:"channel"`
	Text       string    `json:"text" validate:"required"`
	Timestamp  time.Time `json:"timestamp"`
}

// Comment is a social comment stored for the sales team without replying.
type Comment struct {
	ID         string    `json:"id" validate:"required"`
	ContactID  string    `json:"contactId" validate:"required"`
	LocationID string    `json:"locationId" validate:"required"`
	Platform   string    `json:"platform" validate:"required,oneof=facebook instagram"`
	Text       string    `json:"text" validate:"required"`
	PostURL    string    `json:"postUrl,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func phoneChannel(channel string) bool {
	return strings.EqualFold(channel, ChannelWhatsApp) || strings.EqualFold(channel, ChannelSMS)
}

var websitePhrases = []string{"sitio web", "página web", "pagina web", "su web", "website"}

func mentionsWebsite(text, source string) bool {
	lower := strings.ToLower(text + " " + source)
	for _, p := range websitePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
