package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "raceday/pkg/domain-errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "INTERNAL_ERROR", body["code"])
		assert.Equal(t, "internal error", body["error"])
	})

	t.Run("unknown errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", decode(t, w)["code"])
	})

	t.Run("domain errors carry message and code", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeSoldOut, "distance is sold out"))

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "SOLD_OUT", body["code"])
		assert.Equal(t, "distance is sold out", body["error"])
	})
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"id": "r1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, map[string]any{"id": "r1"}, body["data"])
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:            http.StatusBadRequest,
		dErrors.CodeUnauthenticated:       http.StatusUnauthorized,
		dErrors.CodeDOBMismatch:           http.StatusForbidden,
		dErrors.CodeEventNotFound:         http.StatusNotFound,
		dErrors.CodeAlreadyClaimed:        http.StatusConflict,
		dErrors.CodeMissingWaiver:         http.StatusUnprocessableEntity,
		dErrors.CodeRegistrationExpired:   http.StatusGone,
		dErrors.CodeRateLimited:           http.StatusTooManyRequests,
		dErrors.CodeCapacityBelowReserved: http.StatusConflict,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusFor(code), string(code))
	}
}
