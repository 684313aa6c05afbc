package webhook

import (
	"strings"

	"leadfunnel_backend/internal/orchestrator"
)

// DetectChannel maps a provider source label onto the CRM channel names.
// Unknown sources are treated as WhatsApp, the dominant channel.
func DetectChannel(source string) string {
	s := strings.ToLower(source)
	switch {
	case containsAny(s, "whatsapp", "whats"):
		return orchestrator.ChannelWhatsApp
	case containsAny(s, "facebook", "fb", "messenger"):
		return orchestrator.ChannelFacebook
	case containsAny(s, "instagram", "ig"):
		return orchestrator.ChannelIG
	case strings.Contains(s, "sms"):
		return orchestrator.ChannelSMS
	case containsAny(s, "gmb", "google"):
		return orchestrator.ChannelGMB
	default:
		return orchestrator.ChannelWhatsApp
	}
}

// sourceOf walks the attribution fallbacks when the payload names no source.
func sourceOf(p Payload) string {
	if s := p.First("source"); s != "" && s != "unknown" {
		return s
	}
	if s := p.String("customData", "source"); s != "" && s != "unknown" {
		return s
	}
	candidates := []string{
		p.String("contact", "attributionSource", "medium"),
		p.String("contact", "lastAttributionSource", "medium"),
		p.String("type"),
		p.String("messageType"),
		p.String("customData", "type"),
		p.String("customData", "messageType"),
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown"
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
