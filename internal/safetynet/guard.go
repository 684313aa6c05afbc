// Package safetynet evaluates the deterministic rules that may answer an
// inbound message without calling the generation model.
package safetynet

import (
	"strings"
	"time"
	"unicode/utf8"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/loop"
)

// Action is the outcome of a guard evaluation.
type Action int

const (
	// Continue lets the pipeline call the generation model.
	Continue Action = iota
	// RespondAndStop sends Decision.Reply and ends the cycle.
	RespondAndStop
	// Handoff flags the contact for a human. Decision.Reply may carry a closing text.
	Handoff
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case RespondAndStop:
		return "respond_and_stop"
	case Handoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// Rule names the rule that produced a decision.
type Rule string

const (
	RuleNone          Rule = ""
	RuleHumanTakeover Rule = "human_takeover"
	RuleCooldown      Rule = "handoff_cooldown"
	RuleAdminTopic    Rule = "admin_topic"
	RulePostBooking   Rule = "post_booking"
	RuleUserLoop      Rule = "pre_generation_loop"
	RuleModelLoop     Rule = "post_generation_loop"
	RuleHumanRequest  Rule = "human_request"
	RuleCompleteData  Rule = "complete_data"
)

// Decision is the guard's verdict. The guard never writes state itself;
// the flags tell the caller which writes to perform.
type Decision struct {
	Action Action
	Rule   Rule
	Reply  string
	Tags   []string
	// MetaType labels the stored outgoing message.
	MetaType string
	// SetHumanActive asks the caller to set the sticky human flag.
	SetHumanActive bool
	// PostBooking asks the caller to generate in the restrictive mode.
	PostBooking bool
	// BookingSeenInHistory asks the caller to persist booking_sent_at.
	BookingSeenInHistory bool
}

// Input is everything the guard looks at for one inbound message.
type Input struct {
	Now           time.Time
	Text          string
	HumanActive   bool
	LastHandoffAt *time.Time
	// History excludes the inbound message being evaluated.
	History []conversation.Message
	Lead    leadstate.State
	// FromLeadForm is true when this event carried a lead-form submission.
	FromLeadForm bool
	// CarriesContactData is true when this event brought both a phone and an email.
	CarriesContactData bool
}

// Guard holds the rule configuration.
type Guard struct {
	cooldown     time.Duration
	campusNames  []string
	bookingHosts []string
}

// NewGuard returns a guard. bookingHosts are substrings identifying booking URLs.
func NewGuard(cooldown time.Duration, campusNames []string, bookingHosts []string) *Guard {
	return &Guard{cooldown: cooldown, campusNames: campusNames, bookingHosts: bookingHosts}
}

// CampusNames returns the location names used in forced questions.
func (g *Guard) CampusNames() []string {
	return g.campusNames
}

// Evaluate applies the rules in order; the first match wins.
func (g *Guard) Evaluate(in Input) Decision {
	if d, ok := g.humanTakeover(in); ok {
		return d
	}
	if g.inCooldown(in) {
		return Decision{Action: Handoff, Rule: RuleCooldown}
	}
	if kw := AdminKeyword(in.Text); kw != "" {
		return Decision{
			Action:   Handoff,
			Rule:     RuleAdminTopic,
			Reply:    AdminText(kw),
			Tags:     []string{TagNeedsHuman, TagAdminTopic},
			MetaType: conversation.MetaTypeAdminHandoff,
		}
	}

	bookingSent := in.Lead.BookingSent()
	seenInHistory := false
	if !bookingSent && g.BookingLinkInHistory(in.History) {
		bookingSent, seenInHistory = true, true
	}
	if bookingSent && !in.FromLeadForm {
		if in.Lead.PostBookingCount >= 1 {
			return Decision{
				Action:               Handoff,
				Rule:                 RulePostBooking,
				Reply:                TextPostBooking,
				Tags:                 []string{TagPendingBooking},
				MetaType:             conversation.MetaTypeBypass,
				SetHumanActive:       true,
				BookingSeenInHistory: seenInHistory,
			}
		}
		return Decision{Action: Continue, Rule: RulePostBooking, PostBooking: true, BookingSeenInHistory: seenInHistory}
	}

	recent := conversation.LastOutboundTexts(in.History, loop.PreGenerationWindow)
	if loop.UserStuck(in.Text, recent) || loop.HistoryStuck(recent) {
		if in.Lead.IsComplete {
			return Decision{
				Action:   Handoff,
				Rule:     RuleUserLoop,
				Reply:    AdvisorLinkText(in.Lead.Captured.Name),
				Tags:     []string{TagNeedsHuman},
				MetaType: conversation.MetaTypeLoopHandoff,
			}
		}
		return Decision{
			Action:   RespondAndStop,
			Rule:     RuleUserLoop,
			Reply:    NextFieldQuestion(in.Lead.NextMissing(), g.campusNames),
			MetaType: conversation.MetaTypeLoopHandoff,
		}
	}

	if IsHumanRequest(in.Text) {
		return Decision{
			Action:   Handoff,
			Rule:     RuleHumanRequest,
			Reply:    AdvisorLinkText(in.Lead.Captured.Name),
			Tags:     []string{TagNeedsHuman},
			MetaType: conversation.MetaTypeBypass,
		}
	}
	if in.Lead.IsComplete && (in.CarriesContactData || in.FromLeadForm) {
		return Decision{
			Action:   RespondAndStop,
			Rule:     RuleCompleteData,
			Reply:    CompleteDataText(in.Lead.Captured.Name),
			MetaType: conversation.MetaTypeBypass,
		}
	}

	return Decision{Action: Continue}
}

func (g *Guard) humanTakeover(in Input) (Decision, bool) {
	if in.HumanActive {
		return Decision{Action: Handoff, Rule: RuleHumanTakeover}, true
	}
	if last, ok := conversation.LastOutbound(in.History); ok && !last.SystemAuthored() {
		return Decision{Action: Handoff, Rule: RuleHumanTakeover, SetHumanActive: true}, true
	}
	return Decision{}, false
}

func (g *Guard) inCooldown(in Input) bool {
	if in.LastHandoffAt != nil && in.Now.Sub(*in.LastHandoffAt) < g.cooldown {
		return true
	}
	last, ok := conversation.LastOutbound(in.History)
	return ok && IsHandoffText(last.Text()) && in.Now.Sub(last.CreatedAt) < g.cooldown
}

// BookingLinkInHistory reports whether a system reply already carried a booking URL.
func (g *Guard) BookingLinkInHistory(history []conversation.Message) bool {
	for _, m := range history {
		if m.Role == conversation.RoleOutgoing && m.SystemAuthored() && g.HasBookingLink(m.Content) {
			return true
		}
	}
	return false
}

// HasBookingLink reports whether text contains a booking URL.
func (g *Guard) HasBookingLink(text string) bool {
	for _, h := range g.bookingHosts {
		if h != "" && strings.Contains(text, h) {
			return true
		}
	}
	return false
}

var humanKeywords = []string{"asesor", "humano", "persona", "alguien", "agendar", "cita"}

var adminKeywords = []string{
	"boleta", "kardex", "servicio social",
	"baja temporal", "baja definitiva", "reinscripción", "reinscripcion",
	"certificado", "constancia", "credencial",
	"cambio de escuela", "equivalencia", "revalidación", "revalidacion",
	"historial académico", "historial academico",
	"pago de colegiatura", "factura", "estado de cuenta",
	"plataforma", "moodle", "contraseña", "password",
}

// IsHumanRequest reports whether a short message asks for a person.
func IsHumanRequest(text string) bool {
	lower := strings.ToLower(text)
	if utf8.RuneCountInString(lower) >= 50 {
		return false
	}
	for _, kw := range humanKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// AdminKeyword returns the administrative keyword found in text, if any.
func AdminKeyword(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range adminKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
