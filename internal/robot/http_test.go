package robot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	r, _ := newTestRobot(t)
	r.Brain().UserForID("u1", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "wirebot", health.Name)
	assert.Equal(t, "mock", health.Adapter)
	assert.False(t, health.Connected)
	assert.Equal(t, 1, health.Users)
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	r, _ := newTestRobot(t)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSay(t *testing.T) {
	r, adapter := newTestRobot(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/wirebot/say?room=c1", strings.NewReader("deploy finished\n"))
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"deploy finished"}, adapter.Sent())
	assert.Equal(t, []string{"c1"}, adapter.Rooms())
}

func TestHandleSay_Token(t *testing.T) {
	r := New(Options{Name: "wirebot", HTTPToken: "t0ken"})
	adapter := newMockAdapter()
	require.NoError(t, r.LoadAdapter("mock", func(*Robot) (Adapter, error) {
		return adapter, nil
	}))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"token without scheme", "t0ken", http.StatusUnauthorized},
		{"valid token", "Bearer t0ken", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/wirebot/say?room=c1", strings.NewReader("hi"))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	assert.Equal(t, []string{"hi"}, adapter.Sent())
}

func TestHandleHealth_NoTokenNeeded(t *testing.T) {
	r := New(Options{Name: "wirebot", HTTPToken: "t0ken"})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSay_BadRequests(t *testing.T) {
	r, adapter := newTestRobot(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"wrong method", http.MethodGet, "/wirebot/say?room=c1", "", http.StatusMethodNotAllowed},
		{"missing room", http.MethodPost, "/wirebot/say", "hi", http.StatusBadRequest},
		{"empty body", http.MethodPost, "/wirebot/say?room=c1", "  ", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Empty(t, adapter.Sent())
}

func TestHandleSay_NoAdapter(t *testing.T) {
	r := New(Options{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/wirebot/say?room=c1", strings.NewReader("hi"))
	r.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
