// Package httputil renders the JSON envelope every endpoint answers with:
//
//	{"ok": true, "data": ...}
//	{"ok": false, "error": "<message>", "code": "<CODE>"}
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "raceday/pkg/domain-errors"
)

// Envelope is the response body shape.
type Envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes data with status inside a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{OK: true, Data: data})
}

// WriteError maps err to an HTTP status and writes a failure envelope. Internal
// errors never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	msg := "internal error"
	if status != http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			msg = de.Message
		} else {
			msg = err.Error()
		}
	}
	write(w, status, Envelope{OK: false, Error: msg, Code: string(code)})
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidHeaders,
		dErrors.CodeInvalidFile, dErrors.CodeInvalidRow, dErrors.CodeTooManyRows, dErrors.CodeNoRows,
		dErrors.CodeDOBRequired:
		return http.StatusBadRequest
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeEmailMismatch, dErrors.CodeDOBMismatch, dErrors.CodeEmailNotVerified:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeEventNotFound, dErrors.CodeInviteInvalid:
		return http.StatusNotFound
	case dErrors.CodeAlreadySubmitted, dErrors.CodeInvalidState, dErrors.CodeInvalidStateTransition,
		dErrors.CodeSoldOut, dErrors.CodeInsufficientCapacity, dErrors.CodeCapacityBelowReserved,
		dErrors.CodeNotPublished, dErrors.CodeEventNotPublished, dErrors.CodeRegistrationPaused,
		dErrors.CodeRegistrationNotOpen, dErrors.CodeRegistrationClosed, dErrors.CodeAlreadyClaimed,
		dErrors.CodeAlreadyRegistered:
		return http.StatusConflict
	case dErrors.CodeMissingRegistrant, dErrors.CodeMissingWaiver, dErrors.CodeMissingRequiredAnswer:
		return http.StatusUnprocessableEntity
	case dErrors.CodeRegistrationExpired, dErrors.CodeInviteExpired, dErrors.CodeInviteCancelled:
		return http.StatusGone
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

const maxBodyBytes = 1 << 20

// DecodeJSON reads a JSON body into v. Malformed bodies are BAD_REQUEST.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// URLParamUUID parses the named chi route parameter as a UUID.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", name)
	}
	return id, nil
}
