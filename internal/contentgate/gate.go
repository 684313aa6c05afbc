// Package contentgate validates generated text before it is sent to a contact.
package contentgate

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/loop"
	"leadfunnel_backend/internal/safetynet"
	"leadfunnel_backend/platform/logger"
)

const (
	socialLimit      = 1500
	urlMatchCutoff   = 0.6
	minRecoveredTail = 20
)

var systemLeakPatterns = []string{
	"[SISTEMA", "[SYSTEM", "DATO PRE-CAPTURADO",
	"[INTERNAL", "[DEBUG", "[CONTEXT",
	"SystemMessage", "HumanMessage", "AIMessage",
}

var (
	codeLeakRe     = regexp.MustCompile(`(?i)(?:print\s*\(|default_api\.|get_campus_info\s*\(|get_objection_response\s*\(|save_lead_data\s*\(|\w+_api\.\w+\s*\()`)
	jsonArtifactRe = regexp.MustCompile(`(?i)\{"(?:thought|thinking|reflection|plan)"[^}]*\}`)
	urlRe          = regexp.MustCompile(`https?://[^\s<>"')\],]+`)
	emptyLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(\s*\)`)
	spacesRe       = regexp.MustCompile(`[ \t]{2,}`)
)

// Reason explains a blocked send.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonEmpty      Reason = "empty"
	ReasonSystemLeak Reason = "system_leak"
	ReasonCodeLeak   Reason = "code_leak"
	ReasonDuplicate  Reason = "duplicate"
)

// Input is one candidate reply.
type Input struct {
	Text    string
	Channel string
	// BookingLink replaces any placeholder left in the text.
	BookingLink string
	// ToolURLs are the URLs returned by generation tools in this cycle.
	ToolURLs []string
	// LastOutbound is the previous system reply, without the marker.
	LastOutbound string
}

// Result is the gate verdict. When OK is false the caller sends a fallback.
type Result struct {
	Text   string
	OK     bool
	Reason Reason
}

// Gate holds the URL allowlist.
type Gate struct {
	allowedHosts []string
	log          *logger.Logger
}

// New returns a gate. allowedHosts are host (or host/path prefix) markers
// whose URLs may be sent as written.
func New(allowedHosts []string, log *logger.Logger) *Gate {
	return &Gate{allowedHosts: allowedHosts, log: log}
}

// Check cleans text and decides whether it may be sent.
func (g *Gate) Check(in Input) Result {
	text := strings.TrimSpace(strings.ReplaceAll(in.Text, conversation.SystemMarker, ""))
	if text == "" {
		return g.block(ReasonEmpty, in.Text)
	}

	for _, p := range systemLeakPatterns {
		if !strings.Contains(text, p) {
			continue
		}
		idx := strings.Index(text, "]")
		if idx == -1 || idx >= len(text)-10 {
			return g.block(ReasonSystemLeak, text)
		}
		recovered := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(text[idx+1:]), ":"))
		if utf8.RuneCountInString(recovered) <= minRecoveredTail {
			return g.block(ReasonSystemLeak, text)
		}
		text = recovered
		break
	}

	text = strings.TrimSpace(jsonArtifactRe.ReplaceAllString(text, ""))
	if text == "" {
		return g.block(ReasonEmpty, in.Text)
	}
	if codeLeakRe.MatchString(text) {
		return g.block(ReasonCodeLeak, text)
	}

	if in.BookingLink != "" {
		text = strings.ReplaceAll(text, safetynet.BookingLinkPlaceholder, in.BookingLink)
	}
	text = g.rewriteURLs(text, in.BookingLink, in.ToolURLs)
	if text == "" {
		return g.block(ReasonEmpty, in.Text)
	}

	if isSocial(in.Channel) && utf8.RuneCountInString(text) > socialLimit {
		runes := []rune(text)
		text = string(runes[:socialLimit-3]) + "..."
	}

	if in.LastOutbound != "" && strings.TrimSpace(in.LastOutbound) == text {
		return g.block(ReasonDuplicate, text)
	}
	return Result{Text: text, OK: true}
}

// rewriteURLs keeps allowed URLs, swaps unknown ones for the closest tool
// URL and drops the rest.
func (g *Gate) rewriteURLs(text, bookingLink string, toolURLs []string) string {
	known := make([]string, 0, len(toolURLs))
	knownSet := make(map[string]bool, len(toolURLs))
	for _, u := range toolURLs {
		n := strings.TrimRight(u, "/")
		if n != "" && !knownSet[n] {
			knownSet[n] = true
			known = append(known, n)
		}
	}

	changed := false
	for _, raw := range urlRe.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".;:!?")
		n := strings.TrimRight(u, "/")
		if knownSet[n] || (bookingLink != "" && u == bookingLink) || g.allowed(u) {
			continue
		}
		replacement := closest(n, known)
		if replacement == "" {
			g.log.Warn("dropping unverified url", "url", u)
		} else {
			g.log.Warn("replacing unverified url", "url", u, "replacement", replacement)
		}
		text = strings.Replace(text, u, replacement, 1)
		changed = true
	}
	if changed {
		text = emptyLinkRe.ReplaceAllString(text, "$1")
		text = strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
	}
	return text
}

func (g *Gate) allowed(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	target := strings.ToLower(parsed.Host + parsed.Path)
	for _, h := range g.allowedHosts {
		if h != "" && strings.HasPrefix(target, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func (g *Gate) block(reason Reason, text string) Result {
	preview := text
	if len(preview) > 200 {
		preview = preview[:200]
	}
	g.log.Warn("outgoing text blocked", "reason", string(reason), "preview", preview)
	return Result{OK: false, Reason: reason}
}

func closest(u string, candidates []string) string {
	best, bestScore := "", urlMatchCutoff
	for _, c := range candidates {
		if s := loop.Similarity(u, c); s >= bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func isSocial(channel string) bool {
	switch channel {
	case "IG", "FB", "Instagram", "Facebook Messenger":
		return true
	}
	return false
}
