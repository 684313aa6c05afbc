package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/orchestrator"
	"leadfunnel_backend/platform/sanitize"
)

// Kind classifies a normalized conversation webhook.
type Kind int

const (
	KindIgnored Kind = iota
	KindInbound
	KindOutbound
)

// Reasons reported for ignored payloads.
const (
	ReasonOutbound     = "outbound message"
	ReasonSystemEcho   = "system echo"
	ReasonAgent        = "agent message"
	ReasonEmpty        = "empty message"
	ReasonReaction     = "reaction_or_like"
	ReasonEmptyComment = "empty comment"
)

// Normalized is the result of normalizing one conversation webhook.
type Normalized struct {
	Kind     Kind
	Inbound  orchestrator.Inbound
	Outbound orchestrator.Outbound
	Reason   string
}

// Normalizer turns provider payloads into pipeline events.
type Normalizer struct {
	campuses CampusResolver
	now      func() time.Time
}

func NewNormalizer(campuses CampusResolver) *Normalizer {
	return &Normalizer{campuses: campuses, now: time.Now}
}

func ignored(reason string) Normalized {
	return Normalized{Kind: KindIgnored, Reason: reason}
}

// Normalize classifies a conversation webhook. Outbound messages that do
// not carry the system marker were typed by a human and are returned as
// KindOutbound so the pipeline can stand down for that contact.
func (n *Normalizer) Normalize(p Payload) Normalized {
	direction := strings.ToLower(firstNonEmpty(p.String("direction"), p.String("customData", "direction")))
	msgType := strings.ToLower(firstNonEmpty(p.String("type"), p.String("customData", "type")))
	text := messageText(p)
	leadForm := isLeadForm(text)

	if direction == "outbound" && !leadForm {
		return n.outbound(p, text)
	}
	if (msgType == "agent" || msgType == "system") && !leadForm {
		return ignored(ReasonAgent)
	}
	if text == "" {
		return ignored(ReasonEmpty)
	}
	if isReaction(text, p) {
		return ignored(ReasonReaction)
	}

	ts, rawTS := n.timestamp(p)
	contactID := p.Field("contact_id")
	source := sourceOf(p)
	in := orchestrator.Inbound{
		ContactID:   contactID,
		LocationID:  p.Field("location_id"),
		Channel:     DetectChannel(source),
		Text:        text,
		FullName:    firstNonEmpty(p.Field("full_name"), p.String("contact_name")),
		Source:      source,
		Timestamp:   ts,
		SenderPhone: firstNonEmpty(p.String("phone"), p.String("customData", "phone")),
	}
	if form, ok := ParseLeadForm(text); ok {
		in.FromLeadForm = true
		in.FormData = form.Captured(n.campuses)
		if in.FullName == "" {
			in.FullName = form.FullName()
		}
		if in.SenderPhone == "" {
			in.SenderPhone = form.Phone
		}
	}
	in.ID = eventID(p, contactID, rawTS, text)
	return Normalized{Kind: KindInbound, Inbound: in}
}

func (n *Normalizer) outbound(p Payload, text string) Normalized {
	if text == "" {
		return ignored(ReasonOutbound)
	}
	if strings.Contains(text, conversation.SystemMarker) {
		return ignored(ReasonSystemEcho)
	}
	ts, rawTS := n.timestamp(p)
	contactID := p.Field("contact_id")
	out := orchestrator.Outbound{
		ContactID:  contactID,
		LocationID: p.Field("location_id"),
		Channel:    DetectChannel(sourceOf(p)),
		Text:       text,
		Timestamp:  ts,
	}
	out.ID = eventID(p, contactID, rawTS, text)
	return Normalized{Kind: KindOutbound, Outbound: out}
}

// NormalizeComment reads a Facebook or Instagram comment trigger.
func (n *Normalizer) NormalizeComment(platform string, p Payload) (orchestrator.Comment, bool) {
	trigger, key := "fbCommentOnPost", "fb"
	if platform == "instagram" {
		trigger, key = "igCommentOnPost", "ig"
	}
	post := p.Object("triggerData", trigger, key)

	text := sanitize.Text(firstNonEmpty(
		post.String("body"),
		p.String("customData", "message_body"),
		p.String("message_body"),
	))
	if text == "" {
		return orchestrator.Comment{}, false
	}

	var postURL string
	if platform == "instagram" {
		postURL = firstElement(post.Raw("postUrlOrId"))
	} else {
		postURL = post.String("permalinkUrl")
	}

	contactID := firstNonEmpty(p.String("contact_id"), p.String("customData", "contact_id"))
	locationID := firstNonEmpty(
		p.String("location", "id"),
		p.String("customData", "location_id"),
		p.String("location_id"),
	)
	ts, rawTS := n.timestamp(p)
	cm := orchestrator.Comment{
		ContactID:  contactID,
		LocationID: locationID,
		Platform:   platform,
		Text:       text,
		PostURL:    postURL,
		AuthorName: firstNonEmpty(p.String("full_name"), p.String("customData", "full_name")),
		Timestamp:  ts,
	}
	cm.ID = eventID(p, platform+"|"+contactID+"|"+post.String("postId"), rawTS, text)
	return cm, true
}

// messageText reads the body from message_body, customData.message_body or
// message (a string or an object with a body).
func messageText(p Payload) string {
	raw := firstNonEmpty(p.String("message_body"), p.String("customData", "message_body"))
	if raw == "" {
		raw = p.String("message")
	}
	if raw == "" {
		raw = p.String("message", "body")
	}
	return sanitize.Text(raw)
}

// timestamp returns the provider time (RFC 3339 or epoch seconds/millis)
// and the raw value used for the event id. Without a provider time the
// receipt time truncated to the minute stands in.
func (n *Normalizer) timestamp(p Payload) (time.Time, string) {
	raw := firstNonEmpty(p.String("dateAdded"), p.String("timestamp"), p.String("customData", "timestamp"))
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), raw
		}
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if epoch > 1e12 {
				return time.UnixMilli(epoch).UTC(), raw
			}
			return time.Unix(epoch, 0).UTC(), raw
		}
	}
	now := n.now().UTC()
	if raw == "" {
		raw = now.Truncate(time.Minute).Format(time.RFC3339)
	}
	return now, raw
}

// eventID prefers the provider's message id; otherwise the id is derived
// from the sender, time and text so redeliveries hash to the same value.
func eventID(p Payload, sender, ts, text string) string {
	if id := firstNonEmpty(
		p.String("messageId"),
		p.String("message_id"),
		p.String("customData", "messageId"),
		p.String("message", "id"),
	); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(sender + "|" + ts + "|" + text))
	return hex.EncodeToString(sum[:])
}

func firstElement(v any) string {
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			return scalarString(t[0])
		}
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}
