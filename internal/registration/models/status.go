package models

import (
	dErrors "raceday/pkg/domain-errors"
)

// Status is the stored lifecycle state of a registration.
type Status string

const (
	StatusStarted        Status = "started"
	StatusSubmitted      Status = "submitted"
	StatusPaymentPending Status = "payment_pending"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
)

// ProvisionalStatuses are the hold states that carry an expiry.
var ProvisionalStatuses = []Status{StatusStarted, StatusSubmitted, StatusPaymentPending}

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusStarted, StatusSubmitted, StatusPaymentPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// IsProvisional reports whether s is a time-boxed hold state.
func (s Status) IsProvisional() bool {
	switch s {
	case StatusStarted, StatusSubmitted, StatusPaymentPending:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle event applies.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// Event drives a status transition.
type Event string

const (
	EventSubmit          Event = "submit"
	EventFinalizeConfirm Event = "finalize_confirm"
	EventFinalizePending Event = "finalize_pending"
	EventPaymentReceived Event = "payment_received"
	EventCancel          Event = "cancel"
	EventExpire          Event = "expire"
)

// transitions is the authoritative table of legal moves. Start has no "from" state and
// is modelled by NewRegistration; accept-waiver and answer-question never move status.
var transitions = map[Status]map[Event]Status{
	StatusStarted: {
		EventSubmit:          StatusSubmitted,
		EventFinalizeConfirm: StatusConfirmed,
		EventFinalizePending: StatusPaymentPending,
		EventCancel:          StatusCancelled,
		EventExpire:          StatusCancelled,
	},
	StatusSubmitted: {
		EventFinalizeConfirm: StatusConfirmed,
		EventFinalizePending: StatusPaymentPending,
		EventCancel:          StatusCancelled,
		EventExpire:          StatusCancelled,
	},
	StatusPaymentPending: {
		EventPaymentReceived: StatusConfirmed,
		EventCancel:          StatusCancelled,
		EventExpire:          StatusCancelled,
	},
	StatusConfirmed: {
		EventCancel: StatusCancelled,
	},
}

// Transition returns the status reached from s on ev, or INVALID_STATE_TRANSITION.
func (s Status) Transition(ev Event) (Status, error) {
	if to, ok := transitions[s][ev]; ok {
		return to, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidStateTransition, "cannot %s a %s registration", ev, s)
}

// SourcesFor lists every status from which ev is legal. Stores use it as the expected
// prior-status set of a compare-and-swap update.
func SourcesFor(ev Event) []Status {
	var out []Status
	for _, from := range []Status{StatusStarted, StatusSubmitted, StatusPaymentPending, StatusConfirmed, StatusCancelled} {
		if _, ok := transitions[from][ev]; ok {
			out = append(out, from)
		}
	}
	return out
}

// PaymentResponsibility says who settles the registration fee.
type PaymentResponsibility string

const (
	PaymentSelfPay    PaymentResponsibility = "self_pay"
	PaymentCentralPay PaymentResponsibility = "central_pay"
)

// IsValid checks if the responsibility is a supported value.
func (p PaymentResponsibility) IsValid() bool {
	return p == PaymentSelfPay || p == PaymentCentralPay
}
