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

// HTTP Response Helpers

// AssertStatusCode fails if the response status code doesn't match
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, w.Code, "status code mismatch. Body: %s", w.Body.String())
}

// ErrorEnvelope mirrors the JSON error body written by the response package.
type ErrorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
		Path      string `json:"path"`
	} `json:"error"`
}

// AssertErrorEnvelope checks status and code of an error response and
// returns the decoded envelope.
func AssertErrorEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) ErrorEnvelope {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	env := DecodeJSON[ErrorEnvelope](t, w)
	assert.Equal(t, expectedCode, env.Error.Code)
	assert.NotEmpty(t, env.Error.Timestamp)
	return env
}

// AssertCookie fails if the response doesn't have a cookie with the expected name
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("expected cookie %q not found", name)
	return nil
}

// Request Helpers

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewBearerRequest creates a request carrying token in the Authorization header
func NewBearerRequest(method, url, token string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result), "Body: %s", w.Body.String())
	return result
}
