package safetynet

import (
	"strings"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/leadstate"
)

// RecoverModelLoop replaces a generated reply that repeats the previous one.
// Without qualification data, or when the model keeps greeting, the contact
// gets the next field question; otherwise the booking link and a handoff.
func (g *Guard) RecoverModelLoop(reply string, lead leadstate.State) Decision {
	next := lead.NextMissing()
	hasInterest := lead.Captured.Campus != "" || lead.Captured.Program != ""

	if next != 0 && (isGreetingLoop(reply) || !hasInterest) {
		return Decision{
			Action:   RespondAndStop,
			Rule:     RuleModelLoop,
			Reply:    NextFieldQuestion(next, g.campusNames),
			MetaType: conversation.MetaTypeLoopHandoff,
		}
	}

	text := PartialDataLinkText()
	if lead.IsComplete {
		text = AdvisorLinkText(lead.Captured.Name)
	}
	return Decision{
		Action:   Handoff,
		Rule:     RuleModelLoop,
		Reply:    text,
		Tags:     []string{TagNeedsHuman},
		MetaType: conversation.MetaTypeLoopHandoff,
	}
}

func isGreetingLoop(reply string) bool {
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "soy luca") || strings.Contains(lower, "inscribir")
}
