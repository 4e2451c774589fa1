package models

import (
	"time"

	dErrors "raceday/pkg/domain-errors"
)

// feePercent is the platform service fee charged on the (discounted) base price.
const feePercent = 5

// ServiceFee is feePercent of cents, rounded half up.
func ServiceFee(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return (cents*feePercent + 50) / 100
}

// ApplyPercentOff reduces cents by percent, rounding the discount half up.
func ApplyPercentOff(cents int64, percent int) int64 {
	if percent <= 0 || cents <= 0 {
		return cents
	}
	if percent >= 100 {
		return 0
	}
	discount := (cents*int64(percent) + 50) / 100
	return cents - discount
}

// Quote is the price breakdown stamped on a registration.
type Quote struct {
	BaseCents   int64
	FeesCents   int64
	TaxCents    int64
	AddOnsCents int64
}

// TotalCents sums every component.
func (q Quote) TotalCents() int64 {
	return q.BaseCents + q.FeesCents + q.TaxCents + q.AddOnsCents
}

// QuoteFor prices a single registration at now: active tier, less percentOff, plus fee.
func QuoteFor(d *Distance, now time.Time, percentOff int) Quote {
	base := ApplyPercentOff(d.PriceAt(now), percentOff)
	return Quote{BaseCents: base, FeesCents: ServiceFee(base)}
}

// Apply copies the quote onto r.
func (q Quote) Apply(r *Registration) {
	r.BasePriceCents = q.BaseCents
	r.FeesCents = q.FeesCents
	r.TaxCents = q.TaxCents
	r.TotalCents = q.TotalCents()
}

// WindowState is the registration availability of an edition at an instant.
type WindowState int

const (
	WindowOpen WindowState = iota
	WindowNotPublished
	WindowPaused
	WindowNotOpen
	WindowClosed
)

// Window evaluates visibility, pause and the [opensAt, closesAt) window, in that order.
func (e *Edition) Window(now time.Time) WindowState {
	switch {
	case !e.Visibility.AcceptsRegistrations():
		return WindowNotPublished
	case e.IsPaused:
		return WindowPaused
	case e.RegistrationOpensAt != nil && now.Before(*e.RegistrationOpensAt):
		return WindowNotOpen
	case e.RegistrationClosesAt != nil && !now.Before(*e.RegistrationClosesAt):
		return WindowClosed
	}
	return WindowOpen
}

// Err maps a closed window to its error. Finalize reports the EVENT_ variant of
// not-published; start reports NOT_PUBLISHED.
func (w WindowState) Err(finalize bool) error {
	switch w {
	case WindowNotPublished:
		if finalize {
			return dErrors.New(dErrors.CodeEventNotPublished, "event is not published")
		}
		return dErrors.New(dErrors.CodeNotPublished, "event is not published")
	case WindowPaused:
		return dErrors.New(dErrors.CodeRegistrationPaused, "registration is paused")
	case WindowNotOpen:
		return dErrors.New(dErrors.CodeRegistrationNotOpen, "registration is not open yet")
	case WindowClosed:
		return dErrors.New(dErrors.CodeRegistrationClosed, "registration is closed")
	}
	return nil
}

func (w WindowState) String() string {
	switch w {
	case WindowOpen:
		return "open"
	case WindowNotPublished:
		return "not_published"
	case WindowPaused:
		return "paused"
	case WindowNotOpen:
		return "not_open"
	case WindowClosed:
		return "closed"
	}
	return "unknown"
}
