// Package testutil holds request builders and response assertions shared by
// handler and middleware tests.
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

// ErrorEnvelope is the JSON body every failed request carries.
type ErrorEnvelope struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Request builds a request for path. A non-nil body is sent as JSON.
func Request(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "encode request body")
		payload = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, payload)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	return r
}

// WithBearer sets the Authorization header to a bearer token.
func WithBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// Serve runs r through h and returns what was written.
func Serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

// Decode parses the response body as T.
func Decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response body: %s", rr.Body.String())
	return out
}

// ExpectStatus fails the test unless the response has the given status.
func ExpectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "status, body: %s", rr.Body.String())
}

// ExpectError checks the status and the machine code of an error envelope
// and returns the envelope for further checks.
func ExpectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) ErrorEnvelope {
	t.Helper()
	ExpectStatus(t, rr, status)
	env := Decode[ErrorEnvelope](t, rr)
	assert.Equal(t, code, env.Code, "error code")
	return env
}
