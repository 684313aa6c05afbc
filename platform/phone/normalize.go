// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "MX"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits returns only the decimal digits of input.
func Digits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastTen returns the national 10-digit form: the last ten digits of input,
// or "" when fewer than ten digits are present.
func LastTen(input string) string {
	digits := Digits(input)
	if len(digits) < 10 {
		return ""
	}
	return digits[len(digits)-10:]
}

// ForCRM formats a captured phone for contact upserts: ten national digits get
// the +52 prefix, anything else goes through E.164 normalization.
func ForCRM(input string) string {
	digits := Digits(input)
	if len(digits) == 10 {
		return "+52" + digits
	}
	return NormalizeE164(input)
}
