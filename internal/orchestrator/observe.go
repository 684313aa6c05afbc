package orchestrator

import (
	"context"
	"strings"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/safetynet"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/validator"
)

const echoWindow = 5

// ObserveOutbound records an outgoing message the CRM reported. A message
// without the system marker was written by a person, so the contact is
// handed to humans for good.
func (o *Orchestrator) ObserveOutbound(ctx context.Context, out Outbound) error {
	if err := o.validator.Struct(out); err != nil {
		return apperr.Validation("invalid outbound event").WithDetails(validator.Describe(err))
	}
	if strings.HasPrefix(out.Text, conversation.SystemMarker) {
		return nil
	}
	log := o.log.WithEvent(out.ID).WithContact(out.ContactID, out.LocationID)

	claimed, err := o.deduper.Claim(ctx, out.ID)
	if err != nil || !claimed {
		return err
	}
	release, err := o.locker.Acquire(ctx, out.ContactID)
	if err != nil {
		o.releaseClaim(ctx, out.ID, log)
		return err
	}
	defer release()

	if _, err := o.convs.GetOrCreate(ctx, out.ContactID, out.LocationID, out.Channel); err != nil {
		o.releaseClaim(ctx, out.ID, log)
		return err
	}
	history, err := o.convs.History(ctx, out.ContactID, o.opts.HistoryLimit)
	if err != nil {
		o.releaseClaim(ctx, out.ID, log)
		return err
	}
	// Some channels drop zero-width characters on the echo.
	text := strings.TrimSpace(out.Text)
	for _, prev := range conversation.LastOutboundTexts(history, echoWindow) {
		if strings.TrimSpace(prev) == text {
			return nil
		}
	}

	at := out.Timestamp
	if at.IsZero() {
		at = o.now()
	}
	if _, err := o.convs.AppendMessage(ctx, conversation.Message{
		ContactID: out.ContactID,
		Role:      conversation.RoleOutgoing,
		Content:   out.Text,
		Metadata:  map[string]string{"type": conversation.MetaTypeHuman, "event_id": out.ID},
		CreatedAt: at,
	}); err != nil {
		o.releaseClaim(ctx, out.ID, log)
		return err
	}
	if err := o.convs.SetHumanActive(ctx, out.ContactID); err != nil {
		return err
	}

	log.Decision(string(safetynet.RuleHumanTakeover), safetynet.Handoff.String(), "source", "outbound_webhook")
	o.publish(ctx, events.HandoffTriggered{
		BaseEvent:  events.NewBaseEvent(),
		ContactID:  out.ContactID,
		LocationID: out.LocationID,
		Rule:       string(safetynet.RuleHumanTakeover),
		Sticky:     true,
	})
	return nil
}

// RecordComment stores a social comment on the contact's conversation.
// Comments are never answered automatically.
func (o *Orchestrator) RecordComment(ctx context.Context, cm Comment) error {
	if err := o.validator.Struct(cm); err != nil {
		return apperr.Validation("invalid comment event").WithDetails(validator.Describe(err))
	}
	log := o.log.WithEvent(cm.ID).WithContact(cm.ContactID, cm.LocationID)

	claimed, err := o.deduper.Claim(ctx, cm.ID)
	if err != nil || !claimed {
		return err
	}
	release, err := o.locker.Acquire(ctx, cm.ContactID)
	if err != nil {
		o.releaseClaim(ctx, cm.ID, log)
		return err
	}
	defer release()

	if _, err := o.convs.GetOrCreate(ctx, cm.ContactID, cm.LocationID, ChannelComment); err != nil {
		o.releaseClaim(ctx, cm.ID, log)
		return err
	}
	meta := map[string]string{
		"type":     conversation.MetaTypeComment,
		"platform": cm.Platform,
		"event_id": cm.ID,
	}
	if cm.PostURL != "" {
		meta["postUrl"] = cm.PostURL
	}
	if cm.AuthorName != "" {
		meta["author"] = cm.AuthorName
	}
	at := cm.Timestamp
	if at.IsZero() {
		at = o.now()
	}
	if _, err := o.convs.AppendMessage(ctx, conversation.Message{
		ContactID: cm.ContactID,
		Role:      conversation.RoleIncoming,
		Content:   cm.Text,
		Metadata:  meta,
		CreatedAt: at,
	}); err != nil {
		o.releaseClaim(ctx, cm.ID, log)
		return err
	}
	log.Info("comment recorded", "platform", cm.Platform)
	return nil
}
