package crm

import (
	"context"
	"net/http"
	"strings"
)

const replySubject = "Respuesta IA"

type sendMessagePayload struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Message   string `json:"message"`
	Subject   string `json:"subject,omitempty"`
}

// MessageType maps a normalized channel onto the provider message type.
func MessageType(channel string) string {
	switch strings.ToUpper(channel) {
	case "FB":
		return "FB"
	case "IG":
		return "IG"
	case "SMS":
		return "SMS"
	case "GMB":
		return "GMB"
	default:
		return "WhatsApp"
	}
}

// SendMessage delivers text to a contact on its channel.
func (c *Client) SendMessage(ctx context.Context, locationID, contactID, channel, text string) error {
	return c.do(ctx, request{
		op:         "send_message",
		method:     http.MethodPost,
		path:       "/conversations/messages",
		version:    versionConversations,
		locationID: locationID,
		body: sendMessagePayload{
			Type:      MessageType(channel),
			ContactID: contactID,
			Message:   text,
			Subject:   replySubject,
		},
	})
}
