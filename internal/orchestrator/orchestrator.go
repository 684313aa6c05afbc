// Package orchestrator runs the per-message pipeline: it composes the guard,
// generation, content gate, transfer and booking resolution around one
// inbound event and commits every side effect once.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/contentgate"
	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/extract"
	"leadfunnel_backend/internal/generation"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/loop"
	"leadfunnel_backend/internal/safetynet"
	"leadfunnel_backend/internal/scoring"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"
	"leadfunnel_backend/platform/tracing"
	"leadfunnel_backend/platform/validator"
)

const (
	ruleGenerationFailed safetynet.Rule = "generation_failed"
	ruleDeliveryFailed   safetynet.Rule = "delivery_failed"

	defaultHistoryLimit = 20
)

var tracer = tracing.Tracer("leadfunnel/orchestrator")

// CRM is the messaging and contact surface the pipeline writes to.
type CRM interface {
	SendMessage(ctx context.Context, locationID, contactID, channel, text string) error
	UpdateContact(ctx context.Context, locationID, contactID string, fields crm.ContactFields) error
}

// BookingResolver returns the link sent to a contact.
type BookingResolver interface {
	Resolve(ctx context.Context, contactID, locationID string, history []conversation.Message) (booking.Link, error)
	Fallback(locationID string) booking.Link
}

// Transferer moves a contact to another location.
type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (transfer.Transfer, error)
}

// Campuses detects and resolves location references.
type Campuses interface {
	extract.CampusDetector
	Resolve(ref string) (string, bool)
}

// Deps are the collaborators of the pipeline. Transfers may be nil.
type Deps struct {
	Conversations conversation.Store
	Leads         leadstate.Store
	Guard         *safetynet.Guard
	Generator     generation.Generator
	Booking       BookingResolver
	Gate          *contentgate.Gate
	Transfers     Transferer
	CRM           CRM
	Campuses      Campuses
	Bus           events.Bus
	Locker        Locker
	Deduper       Deduper
	Validator     *validator.Validator
	Log           *logger.Logger
}

// Options are the pipeline tunables.
type Options struct {
	HistoryLimit    int
	FastReplyWindow time.Duration
}

// Outcome summarizes one processed event.
type Outcome struct {
	Duplicate bool
	Rule      safetynet.Rule
	Action    safetynet.Action
	// Sent is the text delivered to the contact, without the marker.
	Sent          string
	Score         int
	Tier          string
	TransferredTo string
}

type Orchestrator struct {
	convs     conversation.Store
	leads     leadstate.Store
	guard     *safetynet.Guard
	generator generation.Generator
	booking   BookingResolver
	gate      *contentgate.Gate
	transfers Transferer
	crm       CRM
	campuses  Campuses
	bus       events.Bus
	locker    Locker
	deduper   Deduper
	validator *validator.Validator
	log       *logger.Logger
	opts      Options
	now       func() time.Time
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	return &Orchestrator{
		convs:     d.Conversations,
		leads:     d.Leads,
		guard:     d.Guard,
		generator: d.Generator,
		booking:   d.Booking,
		gate:      d.Gate,
		transfers: d.Transfers,
		crm:       d.CRM,
		campuses:  d.Campuses,
		bus:       d.Bus,
		locker:    d.Locker,
		deduper:   d.Deduper,
		validator: d.Validator,
		log:       d.Log,
		opts:      opts,
		now:       time.Now,
	}
}

// cycle carries the state of one pipeline run.
type cycle struct {
	in         Inbound
	at         time.Time
	contactID  string
	locationID string
	conv       conversation.Conversation
	history    []conversation.Message
	lead       leadstate.State
	before     leadstate.Captured
	carries    bool
	out        Outcome
	log        *logger.Logger
}

// Handle runs the pipeline for one inbound event. Redelivered events are
// skipped; a failed cycle releases its claim so redelivery can retry it.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	if err := o.validator.Struct(in); err != nil {
		return Outcome{}, apperr.Validation("invalid inbound event").WithDetails(validator.Describe(err))
	}

	ctx, span := tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("contact_id", in.ContactID),
		attribute.String("location_id", in.LocationID),
		attribute.String("channel", in.Channel),
	))
	defer span.End()

	log := o.log.WithEvent(in.ID).WithContact(in.ContactID, in.LocationID)

	claimed, err := o.deduper.Claim(ctx, in.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !claimed {
		log.Info("duplicate event skipped")
		return Outcome{Duplicate: true}, nil
	}

	release, err := o.locker.Acquire(ctx, in.ContactID)
	if err != nil {
		o.releaseClaim(ctx, in.ID, log)
		return Outcome{}, err
	}
	defer release()

	c := &cycle{in: in, at: in.Timestamp, contactID: in.ContactID, locationID: in.LocationID, log: log}
	if c.at.IsZero() {
		c.at = o.now()
	}

	if err := o.prepare(ctx, c); err != nil {
		o.releaseClaim(ctx, in.ID, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	o.decide(ctx, c)
	o.settle(ctx, c)

	span.SetAttributes(
		attribute.String("rule", string(c.out.Rule)),
		attribute.String("action", c.out.Action.String()),
		attribute.Int("score", c.out.Score),
	)
	log.Decision(string(c.out.Rule), c.out.Action.String(),
		"score", c.out.Score,
		"tier", c.out.Tier,
		"sent", c.out.Sent != "",
		"transferred_to", c.out.TransferredTo,
	)
	return c.out, nil
}

func (o *Orchestrator) releaseClaim(ctx context.Context, eventID string, log *logger.Logger) {
	if err := o.deduper.Release(context.WithoutCancel(ctx), eventID); err != nil {
		log.Warn("release event claim failed", "error", err)
	}
}

// prepare persists the inbound message and merges deterministic captures.
// Every failure here aborts the cycle before anything is sent.
func (o *Orchestrator) prepare(ctx context.Context, c *cycle) error {
	in := c.in
	conv, err := o.convs.GetOrCreate(ctx, in.ContactID, in.LocationID, in.Channel)
	if err != nil {
		return err
	}
	c.conv = conv

	history, err := o.convs.History(ctx, in.ContactID, o.opts.HistoryLimit)
	if err != nil {
		return err
	}
	c.history = history

	meta := map[string]string{"channel": in.Channel, "event_id": in.ID}
	if in.FromLeadForm {
		meta["type"] = "lead_form"
	}
	if in.Source != "" {
		meta["source"] = in.Source
	}
	if _, err := o.convs.AppendMessage(ctx, conversation.Message{
		ContactID: in.ContactID,
		Role:      conversation.RoleIncoming,
		Content:   in.Text,
		Metadata:  meta,
		CreatedAt: c.at,
	}); err != nil {
		return err
	}

	lead, err := o.leads.GetOrCreate(ctx, in.ContactID)
	if err != nil {
		return err
	}
	c.before = lead.Captured

	captured, carries := o.preCapture(in)
	c.carries = carries
	if in.FromLeadForm {
		if lead, err = o.leads.MarkLeadForm(ctx, in.ContactID); err != nil {
			return err
		}
	}
	if !captured.IsEmpty() {
		if lead, err = o.leads.Update(ctx, in.ContactID, captured); err != nil {
			return err
		}
	}
	c.lead = lead

	if mentionsWebsite(in.Text, in.Source) {
		o.tag(ctx, c, safetynet.TagWebsite)
	}
	return nil
}

// preCapture collects fields from the text, the lead form and the sender
// number. carries reports whether this event itself brought phone and email.
func (o *Orchestrator) preCapture(in Inbound) (leadstate.Captured, bool) {
	fromText := extract.Fields(in.Text, o.campuses)
	if in.FromLeadForm && fromText.Campus != "" && in.FormData.Campus == "" {
		// Form bodies mention many words; only explicit form fields count.
		fromText.Campus = ""
	}
	captured := fromText.Merge(in.FormData)
	if captured.Name == "" && in.FromLeadForm {
		captured.Name = strings.TrimSpace(in.FullName)
	}
	if captured.Phone != "" {
		if ten := phone.LastTen(captured.Phone); ten != "" {
			captured.Phone = ten
		}
	}
	carries := captured.Phone != "" && captured.Email != ""

	if captured.Phone == "" && phoneChannel(in.Channel) && in.SenderPhone != "" {
		captured.Phone = phone.LastTen(in.SenderPhone)
	}
	return captured, carries
}

// decide evaluates the guard and, when allowed, generates a reply.
func (o *Orchestrator) decide(ctx context.Context, c *cycle) {
	d := o.guard.Evaluate(safetynet.Input{
		Now:                c.at,
		Text:               c.in.Text,
		HumanActive:        c.conv.HumanActive,
		LastHandoffAt:      c.conv.LastHandoffAt,
		History:            c.history,
		Lead:               c.lead,
		FromLeadForm:       c.in.FromLeadForm,
		CarriesContactData: c.carries,
	})
	c.out.Rule, c.out.Action = d.Rule, d.Action

	if d.SetHumanActive {
		if err := o.convs.SetHumanActive(ctx, c.contactID); err != nil {
			c.log.Error("set human active failed", "error", err)
		}
	}
	if d.BookingSeenInHistory {
		o.markBookingSent(ctx, c)
	}

	switch d.Action {
	case safetynet.Handoff, safetynet.RespondAndStop:
		if d.Action == safetynet.Handoff && d.Reply == "" {
			if d.SetHumanActive {
				o.publish(ctx, events.HandoffTriggered{
					BaseEvent:  events.NewBaseEvent(),
					ContactID:  c.contactID,
					LocationID: c.locationID,
					Rule:       string(d.Rule),
					Sticky:     true,
				})
			}
			return
		}
		o.respondCanned(ctx, c, d)
	default:
		o.generate(ctx, c, d)
	}
}

func (o *Orchestrator) generate(ctx context.Context, c *cycle, d safetynet.Decision) {
	mode := generation.ModeNormal
	if d.PostBooking {
		mode = generation.ModePostBooking
	}

	gctx, span := tracer.Start(ctx, "pipeline.generate", trace.WithAttributes(attribute.String("mode", mode.String())))
	res, err := o.generator.Generate(gctx, generation.Request{
		ContactID:  c.contactID,
		LocationID: c.locationID,
		Channel:    c.in.Channel,
		Text:       c.in.Text,
		History:    c.history,
		Lead:       c.lead,
		Mode:       mode,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if err != nil {
		c.log.Warn("generation failed", "error", err, "transient", apperr.IsTransient(err))
		c.out.Rule, c.out.Action = ruleGenerationFailed, safetynet.Handoff
		o.respondCanned(ctx, c, safetynet.Decision{
			Action:   safetynet.Handoff,
			Rule:     ruleGenerationFailed,
			Reply:    safetynet.TextHandoff,
			Tags:     []string{safetynet.TagNeedsHuman},
			MetaType: conversation.MetaTypeFallback,
		})
		return
	}

	if !res.Captured.IsEmpty() {
		lead, err := o.leads.Update(ctx, c.contactID, res.Captured)
		if err != nil {
			c.log.Error("merge generated captures failed", "error", err)
		} else {
			c.lead = lead
		}
	}

	if !c.carries && loop.ModelStuck(res.Text, conversation.LastOutboundTexts(c.history, loop.PostGenerationWindow)) {
		rd := o.guard.RecoverModelLoop(res.Text, c.lead)
		c.out.Rule, c.out.Action = rd.Rule, rd.Action
		o.respondCanned(ctx, c, rd)
		return
	}

	text, canned := res.Text, false
	if mode == generation.ModeNormal && c.lead.IsComplete && !c.lead.BookingSent() &&
		!strings.Contains(text, safetynet.BookingLinkPlaceholder) && !o.guard.HasBookingLink(text) {
		text, canned = safetynet.MissedLinkText(c.lead.Captured.Name), true
	}

	if res.Relevant || c.in.FromLeadForm {
		o.tag(ctx, c, safetynet.TagSalesProcess)
	} else {
		o.tag(ctx, c, safetynet.TagNotProspect)
	}

	o.maybeTransfer(ctx, c, res.DetectedLocationID)

	var link booking.Link
	if strings.Contains(text, safetynet.BookingLinkPlaceholder) {
		link = o.resolveLink(ctx, c)
	}

	meta := conversation.MetaTypeGenerated
	if canned {
		text = strings.ReplaceAll(text, safetynet.BookingLinkPlaceholder, link.URL)
		meta = conversation.MetaTypeBypass
	} else {
		lastText := ""
		if last, ok := conversation.LastOutbound(c.history); ok {
			lastText = last.Text()
		}
		verdict := o.gate.Check(contentgate.Input{
			Text:         text,
			Channel:      c.in.Channel,
			BookingLink:  link.URL,
			ToolURLs:     res.ToolURLs,
			LastOutbound: lastText,
		})
		if verdict.OK {
			text = verdict.Text
		} else {
			c.log.Warn("generated reply blocked", "reason", string(verdict.Reason))
			text, meta = safetynet.TextSafeFallback, conversation.MetaTypeFallback
		}
	}

	if sent := o.deliver(ctx, c, text, meta, nil); sent {
		if o.carriesBookingLink(text, link) {
			o.markBookingSent(ctx, c)
		}
		if mode == generation.ModePostBooking {
			if lead, err := o.leads.IncrementPostBookingCount(ctx, c.contactID); err != nil {
				c.log.Error("increment post-booking count failed", "error", err)
			} else {
				c.lead = lead
			}
		}
	}
}

// respondCanned sends a fixed reply and applies the handoff side effects.
func (o *Orchestrator) respondCanned(ctx context.Context, c *cycle, d safetynet.Decision) {
	text := d.Reply
	var link booking.Link
	if strings.Contains(text, safetynet.BookingLinkPlaceholder) {
		link = o.resolveLink(ctx, c)
		text = strings.ReplaceAll(text, safetynet.BookingLinkPlaceholder, link.URL)
	}

	meta := map[string]string{"rule": string(d.Rule)}
	sent := o.deliver(ctx, c, text, d.MetaType, meta)
	if sent && o.carriesBookingLink(text, link) {
		o.markBookingSent(ctx, c)
	}

	for _, tag := range d.Tags {
		o.tag(ctx, c, tag)
	}
	if d.Action != safetynet.Handoff {
		return
	}
	if err := o.convs.StampHandoff(ctx, c.contactID, c.at); err != nil {
		c.log.Error("stamp handoff failed", "error", err)
	}
	o.publish(ctx, events.HandoffTriggered{
		BaseEvent:  events.NewBaseEvent(),
		ContactID:  c.contactID,
		LocationID: c.locationID,
		Rule:       string(d.Rule),
		Sticky:     d.SetHumanActive,
	})
}

// deliver sends text with the system marker and stores it. A failed send is
// stored with delivery=failed and hands the contact to a human.
func (o *Orchestrator) deliver(ctx context.Context, c *cycle, text, metaType string, meta map[string]string) bool {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["type"] = metaType

	content := conversation.SystemMarker + text
	sendErr := o.crm.SendMessage(ctx, c.locationID, c.contactID, c.in.Channel, content)
	if sendErr != nil {
		c.log.ExternalCallFailed("crm", "send_message", 1, sendErr)
		meta["delivery"] = "failed"
	}

	if _, err := o.convs.AppendMessage(ctx, conversation.Message{
		ContactID: c.contactID,
		Role:      conversation.RoleOutgoing,
		Content:   content,
		Metadata:  meta,
		CreatedAt: o.now(),
	}); err != nil {
		c.log.Error("store outgoing message failed", "error", err)
	}

	if sendErr != nil {
		if err := o.convs.StampHandoff(ctx, c.contactID, c.at); err != nil {
			c.log.Error("stamp handoff failed", "error", err)
		}
		o.publish(ctx, events.HandoffTriggered{
			BaseEvent:  events.NewBaseEvent(),
			ContactID:  c.contactID,
			LocationID: c.locationID,
			Rule:       string(ruleDeliveryFailed),
		})
		return false
	}
	c.out.Sent = text
	return true
}

func (o *Orchestrator) resolveLink(ctx context.Context, c *cycle) booking.Link {
	link, err := o.booking.Resolve(ctx, c.contactID, c.locationID, c.history)
	if err == nil && link.URL != "" {
		return link
	}
	if err != nil && !errors.Is(err, booking.ErrNoAdvisorAvailable) {
		c.log.Warn("booking link resolution failed", "error", err)
	}
	return o.booking.Fallback(c.locationID)
}

func (o *Orchestrator) carriesBookingLink(text string, link booking.Link) bool {
	if link.URL != "" && strings.Contains(text, link.URL) {
		return true
	}
	return o.guard.HasBookingLink(text)
}

func (o *Orchestrator) markBookingSent(ctx context.Context, c *cycle) {
	lead, err := o.leads.MarkBookingSent(ctx, c.contactID, c.at)
	if err != nil {
		c.log.Error("mark booking sent failed", "error", err)
		return
	}
	c.lead = lead
}

// maybeTransfer moves the contact when a tool reported another campus, or
// when this cycle captured a campus that belongs to another location.
func (o *Orchestrator) maybeTransfer(ctx context.Context, c *cycle, detected string) {
	if o.transfers == nil {
		return
	}
	target := detected
	if target == "" && c.lead.Captured.Campus != "" && c.lead.Captured.Campus != c.before.Campus {
		if id, ok := o.campuses.Resolve(c.lead.Captured.Campus); ok {
			target = id
		}
	}
	if target == "" || target == c.locationID {
		return
	}

	tctx, span := tracer.Start(ctx, "pipeline.transfer", trace.WithAttributes(attribute.String("to_location_id", target)))
	defer span.End()

	t, err := o.transfers.Transfer(tctx, transfer.Request{
		ContactID:      c.contactID,
		FromLocationID: c.locationID,
		ToLocationID:   target,
		Channel:        c.in.Channel,
		Lead:           c.lead.Captured,
	})
	if err != nil {
		span.RecordError(err)
		c.log.Warn("transfer did not complete", "to_location_id", target, "error", err)
		return
	}
	if t.Migrated() {
		c.contactID, c.locationID = t.NewContactID, t.ToLocationID
		c.out.TransferredTo = t.ToLocationID
		c.log = c.log.WithContact(c.contactID, c.locationID)
	}
}

// settle scores the contact and pushes new captures to the CRM. It runs on
// every cycle that reached the guard.
func (o *Orchestrator) settle(ctx context.Context, c *cycle) {
	lead := c.lead
	score := scoring.Score(scoring.Signals{
		Captured:         lead.Captured,
		Channel:          c.in.Channel,
		FastReply:        o.fastReply(c),
		FromLeadForm:     lead.FromLeadForm || c.in.FromLeadForm,
		LeadFormComplete: c.in.FromLeadForm && c.in.FormData.Count() == len(leadstate.Order),
		Text:             c.in.Text,
	})
	tier := scoring.TierFor(score)
	c.out.Score, c.out.Tier = score, tier.String()

	if _, err := o.leads.SetScore(ctx, c.contactID, score, tier.String()); err != nil {
		c.log.Error("persist score failed", "error", err)
	} else if lead.ScoreTier != tier.String() {
		o.publish(ctx, events.ScoreTierChanged{
			BaseEvent:  events.NewBaseEvent(),
			ContactID:  c.contactID,
			LocationID: c.locationID,
			Score:      score,
			OldTier:    lead.ScoreTier,
			NewTier:    tier.String(),
		})
	}

	fields := newFields(c.before, lead.Captured)
	if fields.IsEmpty() {
		return
	}
	if err := o.crm.UpdateContact(ctx, c.locationID, c.contactID, fields); err != nil {
		c.log.ExternalCallFailed("crm", "update_contact", 1, err)
	}
}

func (o *Orchestrator) fastReply(c *cycle) bool {
	if o.opts.FastReplyWindow <= 0 {
		return false
	}
	last, ok := conversation.LastOutbound(c.history)
	if !ok || !last.SystemAuthored() {
		return false
	}
	gap := c.at.Sub(last.CreatedAt)
	return gap >= 0 && gap < o.opts.FastReplyWindow
}

func newFields(before, after leadstate.Captured) crm.ContactFields {
	var f crm.ContactFields
	if after.Name != before.Name {
		f.FullName = after.Name
	}
	if after.Phone != before.Phone {
		f.Phone = phone.ForCRM(after.Phone)
	}
	if after.Email != before.Email {
		f.Email = after.Email
	}
	if after.Program != before.Program {
		f.Program = after.Program
	}
	return f
}

func (o *Orchestrator) tag(ctx context.Context, c *cycle, tag string) {
	o.publish(ctx, events.ContactTagged{
		BaseEvent:  events.NewBaseEvent(),
		ContactID:  c.contactID,
		LocationID: c.locationID,
		Tag:        tag,
	})
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if o.bus != nil {
		o.bus.Publish(ctx, e)
	}
}
