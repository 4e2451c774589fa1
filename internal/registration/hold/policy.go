// Package hold decides how long a provisional registration keeps its slot.
//
// Expiry is a derived predicate: nothing rewrites a lapsed hold for correctness. Callers
// load a registration, ask IsExpiredHold, and treat a lapsed hold as gone.
package hold

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"raceday/internal/registration/models"
)

// Defaults applied when no policy file overrides them.
const (
	DefaultStartedTTL        = 30 * time.Minute
	DefaultSubmittedTTL      = 30 * time.Minute
	DefaultPaymentPendingTTL = 24 * time.Hour
)

// Policy holds the time-to-live of each provisional status.
type Policy struct {
	Started        time.Duration
	Submitted      time.Duration
	PaymentPending time.Duration
}

// DefaultPolicy returns the built-in TTLs.
func DefaultPolicy() Policy {
	return Policy{
		Started:        DefaultStartedTTL,
		Submitted:      DefaultSubmittedTTL,
		PaymentPending: DefaultPaymentPendingTTL,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path returns defaults.
//
//	started: 20m
//	submitted: 30m
//	payment_pending: 48h
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read hold policy: %w", err)
	}
	var file struct {
		Started        string `yaml:"started"`
		Submitted      string `yaml:"submitted"`
		PaymentPending string `yaml:"payment_pending"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Policy{}, fmt.Errorf("parse hold policy: %w", err)
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{file.Started, &p.Started},
		{file.Submitted, &p.Submitted},
		{file.PaymentPending, &p.PaymentPending},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil || d <= 0 {
			return Policy{}, fmt.Errorf("invalid hold ttl %q", f.raw)
		}
		*f.dst = d
	}
	return p, nil
}

// TTL returns the hold duration for a provisional status, zero otherwise.
func (p Policy) TTL(status models.Status) time.Duration {
	switch status {
	case models.StatusStarted:
		return p.Started
	case models.StatusSubmitted:
		return p.Submitted
	case models.StatusPaymentPending:
		return p.PaymentPending
	}
	return 0
}

// ComputeExpiresAt returns now + ttl(status). Non-provisional statuses have no hold, so
// callers must not ask; the zero time is returned if they do.
func (p Policy) ComputeExpiresAt(now time.Time, status models.Status) time.Time {
	ttl := p.TTL(status)
	if ttl == 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// ExpiresAtFor is ComputeExpiresAt shaped for storage: nil for non-provisional statuses.
func (p Policy) ExpiresAtFor(now time.Time, status models.Status) *time.Time {
	if !status.IsProvisional() {
		return nil
	}
	t := p.ComputeExpiresAt(now, status)
	return &t
}

// IsExpiredHold is true iff status is provisional, expiresAt is set and now is past it.
func IsExpiredHold(status models.Status, expiresAt *time.Time, now time.Time) bool {
	return status.IsProvisional() && expiresAt != nil && now.After(*expiresAt)
}

// IsExpired is IsExpiredHold applied to a registration.
func IsExpired(r *models.Registration, now time.Time) bool {
	return IsExpiredHold(r.Status, r.ExpiresAt, now)
}

// IsLapsed is IsExpired extended to holds the sweeper already cancelled. The sweeper
// keeps expires_at, so a cancelled registration past it lapsed rather than being
// cancelled by hand.
func IsLapsed(r *models.Registration, now time.Time) bool {
	if r.Status == models.StatusCancelled {
		return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
	}
	return IsExpired(r, now)
}
