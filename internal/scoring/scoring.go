// Package scoring computes the deterministic lead score and its tier.
package scoring

import (
	"strings"

	"leadfunnel_backend/internal/leadstate"
)

// Points per signal.
const (
	PointsCampus           = 10
	PointsProgram          = 15
	PointsName             = 10
	PointsPhone            = 15
	PointsEmail            = 15
	PointsFastReply        = 10
	PointsLeadForm         = 20
	PointsVerifiedChannel  = 5
	PointsEnrollmentIntent = 20
	PointsLeadFormComplete = 30
)

// Signals are the inputs of one scoring pass.
type Signals struct {
	Captured leadstate.Captured
	Channel  string
	// FastReply is true when the contact answered within the fast-reply window.
	FastReply    bool
	FromLeadForm bool
	// LeadFormComplete is true when one form submission carried all five fields.
	LeadFormComplete bool
	Text             string
}

var enrollmentKeywords = []string{
	"inscribirme", "inscripción", "inscripcion", "inscribir a mi hijo",
	"inscribir a mi hija", "me quiero inscribir", "inicio de clases",
	"cuando empiezan", "cuándo empiezan", "cuando empiezo", "cuándo empiezo",
	"próximo ciclo", "proximo ciclo", "periodo escolar", "ciclo escolar",
	"registrarme", "registrar a mi hijo", "inscripcion preescolar",
	"inscripcion primaria", "inscripcion secundaria", "inscripcion bachillerato",
	"quiero inscribir", "nuevo ingreso",
}

// Score sums the points of every signal that holds. It is never negative.
func Score(s Signals) int {
	score := 0
	add := func(cond bool, points int) {
		if cond {
			score += points
		}
	}
	add(s.Captured.Campus != "", PointsCampus)
	add(s.Captured.Program != "", PointsProgram)
	add(s.Captured.Name != "", PointsName)
	add(s.Captured.Phone != "", PointsPhone)
	add(s.Captured.Email != "", PointsEmail)
	add(s.FastReply, PointsFastReply)
	add(s.FromLeadForm, PointsLeadForm)
	add(verifiedChannel(s.Channel), PointsVerifiedChannel)
	add(HasEnrollmentIntent(s.Text), PointsEnrollmentIntent)
	add(s.LeadFormComplete, PointsLeadFormComplete)
	return score
}

// HasEnrollmentIntent reports whether text mentions enrolling.
func HasEnrollmentIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range enrollmentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func verifiedChannel(channel string) bool {
	switch strings.ToLower(channel) {
	case "whatsapp", "sms":
		return true
	}
	return false
}
