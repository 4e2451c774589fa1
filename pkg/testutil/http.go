// Package testutil provides common test utilities for handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope mirrors the response body written by httputil, with data left raw.
type Envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// NewJSONRequest creates an HTTP request with JSON body.
// The body is marshaled to JSON automatically.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithBody creates an HTTP request with a raw JSON string body.
func NewRequestWithBody(t *testing.T, method, path string, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest executes a request against a handler and decodes the envelope.
func DoRequest(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr, env
}

// DecodeData unmarshals the envelope's data into T.
func DecodeData[T any](t *testing.T, env Envelope) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), "failed to unmarshal data")
	return &out
}

// AssertStatusAndCode asserts the status and the domain error code of a failure envelope.
func AssertStatusAndCode(t *testing.T, rr *httptest.ResponseRecorder, env Envelope, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status code")
	assert.False(t, env.OK)
	assert.Equal(t, code, env.Code, "unexpected error code")
}
