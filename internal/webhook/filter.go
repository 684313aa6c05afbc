package webhook

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var reactionKeywords = []string{
	"mención de la historia",
	"mencion de la historia",
	"story_mention",
	"story_reply",
	"reacted to your message",
	"reaccionó a tu mensaje",
	"le dio me gusta a tu mensaje",
	"liked your message",
	"le gustó tu mensaje",
}

var reactionContentTypes = map[string]bool{
	"reaction":         true,
	"story_mention":    true,
	"story_reply":      true,
	"like":             true,
	"ig_story_mention": true,
	"ig_story_reply":   true,
	"fb_reaction":      true,
	"ig_reaction":      true,
}

var reactionTypes = map[string]bool{
	"story_mention": true,
	"story_reply":   true,
	"reaction":      true,
}

// isReaction reports social reactions, likes and story mentions that
// arrive through the message webhook but are not conversation turns.
func isReaction(text string, p Payload) bool {
	contentType := strings.ToLower(firstNonEmpty(
		p.String("contentType"),
		p.String("content_type"),
		p.String("customData", "contentType"),
		p.String("messageType"),
	))
	if reactionContentTypes[contentType] {
		return true
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	if containsAny(lower, reactionKeywords...) {
		return true
	}
	if utf8.RuneCountInString(lower) <= 12 && emojiOnly(text) {
		return true
	}
	return reactionTypes[strings.ToLower(p.String("type"))]
}

// emojiOnly reports whether text consists of emoji (plus joiners and
// variation selectors) and whitespace, with at least one emoji.
func emojiOnly(text string) bool {
	seen := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
		case r == 0x200D || (r >= 0xFE00 && r <= 0xFE0F):
		case isEmoji(r):
			seen = true
		default:
			return false
		}
	}
	return seen
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F6FF:
		return true
	case r >= 0x1F900 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27B0:
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
