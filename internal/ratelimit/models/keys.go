package models

import "strings"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so a user-controlled identifier containing ':' cannot address another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Key joins sanitized segments under a scope, e.g. Key("invite_claim", "user", id).
func Key(scope string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, scope)
	for _, s := range segments {
		parts = append(parts, SanitizeKeySegment(s))
	}
	return strings.Join(parts, ":")
}
