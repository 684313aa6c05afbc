// Package extract pulls lead fields out of free text without calling a model.
package extract

import (
	"regexp"
	"strings"

	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/platform/phone"
)

var (
	phoneRe = regexp.MustCompile(`(?:\+?52)?\s*(?:[ .-]*\(?(\d{2,3})\)?[ .-]*(\d{3,4})[ .-]*(\d{4})|\b(\d{8,10})\b)`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// CampusDetector finds a location mention in text. *campus.Registry satisfies it.
type CampusDetector interface {
	Detect(text string) (string, bool)
	Name(locationID string) string
}

// levelKeywords maps keyword stems to the canonical program level.
var levelKeywords = []struct {
	keyword string
	level   string
}{
	{"preescolar", "Preescolar"},
	{"kinder", "Preescolar"},
	{"kínder", "Preescolar"},
	{"maternal", "Preescolar"},
	{"primaria", "Primaria"},
	{"secundaria", "Secundaria"},
	{"bachillerato", "Bachillerato"},
	{"preparatoria", "Bachillerato"},
	{"prepa", "Bachillerato"},
}

// Phone returns the first 8-10 digit phone number in text, as digits.
func Phone(text string) string {
	for _, m := range phoneRe.FindAllStringSubmatch(text, -1) {
		var digits string
		if m[4] != "" {
			digits = m[4]
		} else {
			digits = m[1] + m[2] + m[3]
		}
		if n := len(digits); n >= 8 && n <= 10 {
			return digits
		}
	}
	return ""
}

// Email returns the first email address in text, lower-cased.
func Email(text string) string {
	return strings.ToLower(emailRe.FindString(text))
}

// Level returns the canonical program level mentioned in text.
func Level(text string) string {
	lower := strings.ToLower(text)
	for _, w := range strings.FieldsFunc(lower, isSeparator) {
		for _, k := range levelKeywords {
			if w == k.keyword {
				return k.level
			}
		}
	}
	return ""
}

// HasContactData reports whether text carries a phone number or an email.
func HasContactData(text string) bool {
	return Phone(text) != "" || Email(text) != ""
}

// Fields runs every extractor over text.
func Fields(text string, campuses CampusDetector) leadstate.Captured {
	var c leadstate.Captured
	if p := Phone(text); p != "" {
		c.Phone = p
		if ten := phone.LastTen(p); ten != "" {
			c.Phone = ten
		}
	}
	c.Email = Email(text)
	c.Program = Level(text)
	if campuses != nil {
		if id, ok := campuses.Detect(text); ok {
			c.Campus = campuses.Name(id)
		}
	}
	return c
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return false
	case r > 127:
		return !strings.ContainsRune("áéíóúüñ", r)
	default:
		return true
	}
}
