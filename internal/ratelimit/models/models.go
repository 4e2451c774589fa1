// Package models holds the rate limiter's result type and key helpers.
package models

import "time"

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is only set when not allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
