// Package domainerrors carries typed, code-bearing errors from services to transports.
//
// Stores return sentinel infrastructure errors; services translate them into an *Error with
// one of the codes below. Transports render the code and message without inspecting strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, client-visible failure code.
type Code string

const (
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeTimeout         Code = "TIMEOUT"

	// Batch upload
	CodeInvalidHeaders Code = "INVALID_HEADERS"
	CodeNoRows         Code = "NO_ROWS"
	CodeTooManyRows    Code = "TOO_MANY_ROWS"
	CodeInvalidFile    Code = "INVALID_FILE"
	CodeInvalidRow     Code = "INVALID_ROW"

	// Lifecycle
	CodeAlreadySubmitted       Code = "ALREADY_SUBMITTED"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeRegistrationExpired    Code = "REGISTRATION_EXPIRED"

	// Capacity
	CodeSoldOut               Code = "SOLD_OUT"
	CodeInsufficientCapacity  Code = "INSUFFICIENT_CAPACITY"
	CodeCapacityBelowReserved Code = "CAPACITY_BELOW_RESERVED"

	// Event scheduling
	CodeNotPublished        Code = "NOT_PUBLISHED"
	CodeEventNotPublished   Code = "EVENT_NOT_PUBLISHED"
	CodeEventNotFound       Code = "EVENT_NOT_FOUND"
	CodeRegistrationPaused  Code = "REGISTRATION_PAUSED"
	CodeRegistrationNotOpen Code = "REGISTRATION_NOT_OPEN"
	CodeRegistrationClosed  Code = "REGISTRATION_CLOSED"

	// Completeness
	CodeMissingRegistrant     Code = "MISSING_REGISTRANT"
	CodeMissingWaiver         Code = "MISSING_WAIVER"
	CodeMissingRequiredAnswer Code = "MISSING_REQUIRED_ANSWER"

	// Invites
	CodeEmailMismatch     Code = "EMAIL_MISMATCH"
	CodeDOBMismatch       Code = "DOB_MISMATCH"
	CodeDOBRequired       Code = "DOB_REQUIRED"
	CodeInviteExpired     Code = "INVITE_EXPIRED"
	CodeInviteCancelled   Code = "INVITE_CANCELLED"
	CodeInviteInvalid     Code = "INVITE_INVALID"
	CodeAlreadyClaimed    Code = "ALREADY_CLAIMED"
	CodeAlreadyRegistered Code = "ALREADY_REGISTERED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeEmailNotVerified  Code = "EMAIL_NOT_VERIFIED"
)

// Error is a domain failure with a code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is reports whether err is a domain error with the given code.
// Kept alongside HasCode for call sites that read better as dErrors.Is(err, code).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsDomain reports whether err is a domain error (as opposed to an unexpected fault).
func IsDomain(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code != CodeInternal
}
