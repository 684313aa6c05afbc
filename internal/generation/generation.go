// Package generation is the boundary around the reply-generating agent.
// Callers pass an explicit Mode; the generator never reads pipeline state on
// its own.
package generation

import (
	"context"
	"regexp"
	"strings"

	"leadfunnel_backend/internal/campus"
	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/objection"
	"leadfunnel_backend/internal/safetynet"
)

// Mode selects the prompt the agent runs under.
type Mode int

const (
	ModeNormal Mode = iota
	// ModePostBooking is the single restricted reply allowed after the booking link went out.
	ModePostBooking
)

func (m Mode) String() string {
	if m == ModePostBooking {
		return "post_booking"
	}
	return "normal"
}

// Request is everything one generation call may look at.
type Request struct {
	ContactID  string
	LocationID string
	Channel    string
	Text       string
	History    []conversation.Message
	Lead       leadstate.State
	Mode       Mode
}

// Result is the generated reply plus what the agent learned while writing it.
// DetectedLocationID is only set when the agent confirmed a campus through a
// tool call; campus names merely listed in the reply do not count.
type Result struct {
	Text               string
	Captured           leadstate.Captured
	DetectedLocationID string
	Relevant           bool
	ToolURLs           []string
}

// Generator produces one reply per inbound message.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// CampusDirectory is the slice of the campus registry the agent needs.
type CampusDirectory interface {
	Get(locationID string) (campus.Campus, bool)
	Name(locationID string) string
	Names() []string
	Resolve(ref string) (string, bool)
}

// Objections hands out the current playbook snapshot.
type Objections interface {
	Snapshot() *objection.Snapshot
}

var notRelevantPhrases = []string{
	"este canal es exclusivo",
	"no tengo acceso a funciones de sistema",
	"no es ventas",
	"bolsa de trabajo",
	"recursos humanos",
	"asistente de admisiones para nuevos alumnos",
	"área correspondiente",
	"asesor especializado te contactará para atender",
}

// IsRelevant reports whether a reply still treats the contact as a prospect.
func IsRelevant(reply string) bool {
	lower := strings.ToLower(reply)
	for _, p := range notRelevantPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

var (
	greetingRe     = regexp.MustCompile(`(?i)^¡?hola[^.!?]{0,60}[.!?]\s*`)
	introductionRe = regexp.MustCompile(`(?i)^soy luca[^.!?]{0,80}[.!?]\s*`)
)

// StripRepeatedGreeting drops a leading greeting and self-introduction once
// the conversation is past its first turn.
func StripRepeatedGreeting(reply string) string {
	reply = greetingRe.ReplaceAllString(reply, "")
	return introductionRe.ReplaceAllString(reply, "")
}

// finish applies the deterministic clean-up every reply goes through.
func finish(req Request, reply string, st *runState, campuses CampusDirectory) Result {
	reply = strings.TrimSpace(strings.ReplaceAll(reply, conversation.SystemMarker, ""))
	reply = strings.ReplaceAll(reply, linkToken, safetynet.BookingLinkPlaceholder)
	if hasSystemReply(req.History) {
		reply = strings.TrimSpace(StripRepeatedGreeting(reply))
	}
	if reply == "" {
		reply = safetynet.NextFieldQuestion(req.Lead.NextMissing(), campuses.Names())
	}

	res := Result{
		Text:     reply,
		Relevant: IsRelevant(reply),
	}
	if st != nil {
		res.Captured = st.captured
		res.ToolURLs = st.urls
		res.DetectedLocationID = st.detected
	}
	return res
}

func hasSystemReply(history []conversation.Message) bool {
	for _, m := range history {
		if m.Role == conversation.RoleOutgoing && m.SystemAuthored() {
			return true
		}
	}
	return false
}
