// Package sanitizer normalizes free-text passenger input before validation
// and persistence.
package sanitizer

import (
	"strings"
	"unicode"
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizePhone strips spaces, dashes and parentheses, keeping a single
// leading plus. It returns the empty string for input that is not a
// plausible phone number.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			result.WriteRune(r)
		case unicode.IsDigit(r):
			result.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			continue
		default:
			return ""
		}
	}

	normalized := result.String()
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return normalized
}

// NormalizeSeatNumber uppercases and strips whitespace from a seat number.
func NormalizeSeatNumber(seat string) string {
	return strings.ToUpper(strings.TrimSpace(seat))
}
