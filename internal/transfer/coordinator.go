package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/safetynet"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
)

const (
	defaultMaxAttempts = 5
	noteHistoryLimit   = 50
	noteMessageRunes   = 500
	transferSource     = "Transferencia de plantel"
)

// CRM is the part of the CRM client a transfer needs.
type CRM interface {
	GetContact(ctx context.Context, locationID, contactID string) (crm.Contact, error)
	FindDuplicate(ctx context.Context, locationID string, fields crm.ContactFields) (string, bool, error)
	CreateContact(ctx context.Context, locationID string, nc crm.NewContact) (string, error)
	AddNote(ctx context.Context, locationID, contactID, body string) error
	SendMessage(ctx context.Context, locationID, contactID, channel, text string) error
}

// Conversations is the conversation store surface used for notice, history and re-keying.
type Conversations interface {
	AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
	History(ctx context.Context, contactID string, limit int) ([]conversation.Message, error)
	Migrate(ctx context.Context, oldContactID, newContactID, toLocationID string) error
}

type CampusNames interface {
	Name(locationID string) string
}

// Request starts a transfer of ContactID from FromLocationID to ToLocationID.
type Request struct {
	ContactID      string
	FromLocationID string
	ToLocationID   string
	Channel        string
	Lead           leadstate.Captured
}

type Coordinator struct {
	store       Store
	crm         CRM
	convs       Conversations
	campuses    CampusNames
	bus         events.Bus
	maxAttempts int
	log         *logger.Logger
}

func NewCoordinator(store Store, client CRM, convs Conversations, campuses CampusNames, bus events.Bus, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		crm:         client,
		convs:       convs,
		campuses:    campuses,
		bus:         bus,
		maxAttempts: defaultMaxAttempts,
		log:         log,
	}
}

// Transfer runs (or continues) the transfer for req. When the returned
// transfer is Migrated the caller must continue under NewContactID and
// ToLocationID; otherwise the contact stays where it was.
func (c *Coordinator) Transfer(ctx context.Context, req Request) (Transfer, error) {
	if req.FromLocationID == req.ToLocationID {
		return Transfer{}, apperr.Invariant("transfer target equals current location")
	}
	t, err := c.store.Open(ctx, Transfer{
		OldContactID:   req.ContactID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Channel:        req.Channel,
	})
	if err != nil {
		return Transfer{}, fmt.Errorf("open transfer: %w", err)
	}
	log := c.log.WithContact(req.ContactID, req.FromLocationID)
	if t.Done() {
		// Messages that arrived under the old id after completion are folded in again.
		if err := c.convs.Migrate(ctx, t.OldContactID, t.NewContactID, t.ToLocationID); err != nil {
			log.Warn("re-migration after completed transfer failed", "transfer_id", t.ID, "error", err)
		}
		return t, nil
	}

	if t.Status == StatusPending && t.Attempts == 0 {
		c.sendNotice(ctx, t, log)
	}
	return c.advance(ctx, t, fieldsFromLead(req.Lead), log)
}

// Resume continues a stored transfer from its last completed step.
func (c *Coordinator) Resume(ctx context.Context, id uuid.UUID) (Transfer, error) {
	t, err := c.store.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if t.Done() {
		return t, nil
	}
	log := c.log.WithContact(t.OldContactID, t.FromLocationID)
	return c.advance(ctx, t, crm.ContactFields{}, log)
}

func (c *Coordinator) advance(ctx context.Context, t Transfer, fields crm.ContactFields, log *logger.Logger) (Transfer, error) {
	t.Status = t.resumeStatus()

	if t.Status == StatusPending {
		id, err := c.ensureContact(ctx, t, fields)
		if err != nil {
			return c.fail(ctx, t, "create_contact", err, log)
		}
		t.NewContactID = id
		t.Status = StatusContactCreated
		t.LastError = ""
		if err := c.store.Save(ctx, t); err != nil {
			return t, fmt.Errorf("save transfer: %w", err)
		}
		log.Info("transfer contact ready", "transfer_id", t.ID, "new_contact_id", id)
	}

	if t.Status == StatusContactCreated {
		if err := c.convs.Migrate(ctx, t.OldContactID, t.NewContactID, t.ToLocationID); err != nil {
			return c.fail(ctx, t, "migrate", err, log)
		}
		t.Status = StatusMigrated
		t.LastError = ""
		if err := c.store.Save(ctx, t); err != nil {
			return t, fmt.Errorf("save transfer: %w", err)
		}
	}

	if t.Status == StatusMigrated {
		// The contact already lives in the target location; a failed note
		// leaves the transfer at this step for a later resume.
		if err := c.postNote(ctx, t); err != nil {
			failed, _ := c.fail(ctx, t, "add_note", err, log)
			return failed, nil
		}
		t.Status = StatusCompleted
		t.LastError = ""
		if err := c.store.Save(ctx, t); err != nil {
			return t, fmt.Errorf("save transfer: %w", err)
		}
		c.bus.Publish(ctx, events.LeadTransferred{
			BaseEvent:      events.NewBaseEvent(),
			TransferID:     t.ID.String(),
			OldContactID:   t.OldContactID,
			NewContactID:   t.NewContactID,
			FromLocationID: t.FromLocationID,
			ToLocationID:   t.ToLocationID,
		})
		log.Info("transfer completed", "transfer_id", t.ID, "new_contact_id", t.NewContactID, "to_location_id", t.ToLocationID)
	}
	return t, nil
}

// ensureContact reuses a contact that already exists in the target location.
func (c *Coordinator) ensureContact(ctx context.Context, t Transfer, fields crm.ContactFields) (string, error) {
	if fields.Phone == "" && fields.Email == "" {
		if origin, err := c.crm.GetContact(ctx, t.FromLocationID, t.OldContactID); err == nil {
			fields = mergeOrigin(fields, origin)
		}
	}

	if fields.Phone != "" || fields.Email != "" {
		id, found, err := c.crm.FindDuplicate(ctx, t.ToLocationID, fields)
		if err != nil {
			return "", err
		}
		if found {
			return id, nil
		}
	}

	return c.crm.CreateContact(ctx, t.ToLocationID, crm.NewContact{
		ContactFields: fields,
		Source:        transferSource,
		Tags:          []string{safetynet.TagTransferred},
	})
}

func (c *Coordinator) fail(ctx context.Context, t Transfer, step string, cause error, log *logger.Logger) (Transfer, error) {
	t.Attempts++
	t.LastError = step + ": " + cause.Error()
	// A migrated transfer is never marked failed: the conversation already
	// lives under the new contact.
	if t.Attempts >= c.maxAttempts && t.Status != StatusMigrated {
		t.Status = StatusFailed
	}
	if err := c.store.Save(ctx, t); err != nil {
		log.Error("failed to save transfer progress", "transfer_id", t.ID, "error", err)
	}
	log.Warn("transfer step failed",
		"transfer_id", t.ID,
		"step", step,
		"attempts", t.Attempts,
		"error", cause,
	)
	if t.Status != StatusFailed {
		c.bus.Publish(ctx, events.TransferRetryRequested{
			BaseEvent:  events.NewBaseEvent(),
			TransferID: t.ID.String(),
		})
	}
	return t, apperr.Transient("transfer "+step+" failed", cause)
}

func (c *Coordinator) sendNotice(ctx context.Context, t Transfer, log *logger.Logger) {
	if err := c.crm.SendMessage(ctx, t.FromLocationID, t.OldContactID, t.Channel, safetynet.TextTransferNotice); err != nil {
		log.Warn("transfer notice not sent", "error", err)
		return
	}
	_, err := c.convs.AppendMessage(ctx, conversation.Message{
		ContactID: t.OldContactID,
		Role:      conversation.RoleOutgoing,
		Content:   conversation.SystemMarker + safetynet.TextTransferNotice,
		Metadata:  map[string]string{"type": conversation.MetaTypeTransfer},
	})
	if err != nil {
		log.Warn("transfer notice not stored", "error", err)
	}
}

func (c *Coordinator) postNote(ctx context.Context, t Transfer) error {
	history, err := c.convs.History(ctx, t.NewContactID, noteHistoryLimit)
	if err != nil {
		return err
	}
	body := NoteBody(c.campuses.Name(t.FromLocationID), t.Channel, history)
	return c.crm.AddNote(ctx, t.ToLocationID, t.NewContactID, body)
}

// NoteBody renders the handover note posted on the new contact.
func NoteBody(originCampus, channel string, history []conversation.Message) string {
	var b strings.Builder
	if originCampus == "" {
		originCampus = "otro plantel"
	}
	fmt.Fprintf(&b, "🔔 PROSPECTO TRANSFERIDO DESDE %s\n", strings.ToUpper(originCampus))
	fmt.Fprintf(&b, "📱 Canal de origen: %s\n", channelLabel(channel))
	if channel != "WhatsApp" && channel != "SMS" {
		b.WriteString("⚠️ Contactar por teléfono/email o esperar a que reinicie la conversación.\n")
	}
	b.WriteString("\n📋 HISTORIAL DE CONVERSACIÓN TRANSFERIDO:\n\n")
	for _, m := range history {
		text := m.Text()
		if r := []rune(text); len(r) > noteMessageRunes {
			text = string(r[:noteMessageRunes])
		}
		fmt.Fprintf(&b, "%s: %s\n\n", noteSpeaker(m), text)
	}
	b.WriteString("─────────────────────────\n⬆️ Historial anterior del prospecto")
	return b.String()
}

func noteSpeaker(m conversation.Message) string {
	switch {
	case m.Role == conversation.RoleIncoming:
		return "👤 Usuario"
	case m.SystemAuthored():
		return "🤖 Luca"
	default:
		return "🧑 Asesor"
	}
}

func channelLabel(channel string) string {
	switch channel {
	case "IG":
		return "Instagram"
	case "FB":
		return "Facebook Messenger"
	case "":
		return "Desconocido"
	default:
		return channel
	}
}

func fieldsFromLead(c leadstate.Captured) crm.ContactFields {
	return crm.ContactFields{
		FullName: c.Name,
		Phone:    c.Phone,
		Email:    c.Email,
		Program:  c.Program,
	}
}

func mergeOrigin(fields crm.ContactFields, origin crm.Contact) crm.ContactFields {
	if fields.FullName == "" {
		fields.FullName = strings.TrimSpace(origin.FirstName + " " + origin.LastName)
	}
	if fields.Phone == "" {
		fields.Phone = origin.Phone
	}
	if fields.Email == "" {
		fields.Email = origin.Email
	}
	return fields
}
