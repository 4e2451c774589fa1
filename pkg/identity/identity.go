// Package identity canonicalises the values used to match registrants to accounts.
// Everything here is pure: no I/O, no clock.
package identity

import (
	"net/mail"
	"strings"
	"time"
)

// DateLayout is the only accepted and produced date-of-birth format.
const DateLayout = "2006-01-02"

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidEmail reports whether raw is a bare addr-spec (no display name).
func ValidEmail(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsAny(trimmed, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return false
	}
	at := strings.LastIndexByte(addr.Address, '@')
	return at > 0 && strings.Contains(addr.Address[at:], ".")
}

// ParseISODate accepts exactly YYYY-MM-DD naming a real calendar day.
func ParseISODate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != len(DateLayout) {
		return "", false
	}
	t, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

// ToISODateString renders a stored date in the canonical form. Only the calendar fields
// of t are used, so the location the driver attached to a DATE column never shifts the day.
func ToISODateString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

// SameDate compares two raw date strings after canonicalisation. Blank never matches.
func SameDate(a, b string) bool {
	ca, okA := ParseISODate(a)
	cb, okB := ParseISODate(b)
	return okA && okB && ca == cb
}
