/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingyigong/kokoro-gate/pkg/admission"
	"github.com/jingyigong/kokoro-gate/pkg/admission/store"
)

func newTestGate(t *testing.T, policy admission.Policy, units UnitsFunc) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	m := store.NewManager(store.Config{
		Addr:          mr.Addr(),
		DialTimeout:   200 * time.Millisecond,
		SocketTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(m.Release)
	return NewServer(admission.NewEngine(policy, m, nil), units)
}

func TestAdmitPassThrough(t *testing.T) {
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 100,
		UnitsPerDay:       100000,
	}, TextLengthFromJSON("input"))

	var sawBody string
	handler := gate.Admit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sawBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech",
		strings.NewReader(`{"model":"kokoro","input":"hello world","voice":"af_bella"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Contains(t, sawBody, "hello world", "body must reach the backend intact after unit counting")
}

func TestAdmitDenied(t *testing.T) {
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 1,
		UnitsPerDay:       100000,
	}, nil)

	handler := gate.Admit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	var body denialBody
	require.NoError(t, jsonUnmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Equal(t, string(admission.ReasonRequests), body.Reason)
	assert.Equal(t, "rate_limit_error", body.Type)
	assert.NotEmpty(t, body.Message)
}

func TestAdmitWhitelisted(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 1,
		UnitsPerDay:       1,
		Whitelist:         []string{"192.0.2.1"},
	}, nil)

	handler := gate.Admit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAdmitOversizeBody(t *testing.T) {
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 1,
		UnitsPerDay:       100000,
	}, TextLengthFromJSON("input"))

	backendCalled := false
	handler := gate.Admit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	huge := strings.Repeat("a", maxBodyBytes+1)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(huge)))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, backendCalled, "an oversized body must never reach the backend")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "request_too_large", body["error"])
	assert.Equal(t, "invalid_request_error", body["type"])

	// The rejection happened before any quota accounting: the next request
	// still gets the full per-minute budget.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`{"input":"hi"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmitBodyAtCapForwardedIntact(t *testing.T) {
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 10,
		UnitsPerDay:       100000000,
	}, TextLengthFromJSON("input"))

	payload := `{"input":"` + strings.Repeat("a", 1<<20) + `"}`

	var sawLen int
	handler := gate.Admit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sawLen = len(body)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(payload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(payload), sawLen, "a body under the cap must reach the backend byte for byte")
}

func TestTextLengthFromJSON(t *testing.T) {
	units := TextLengthFromJSON("input", "text")

	tests := []struct {
		name string
		body string
		want int64
	}{
		{"openai field", `{"input":"hello"}`, 5},
		{"legacy field", `{"text":"hej då"}`, 6},
		{"first field wins", `{"input":"ab","text":"cdef"}`, 2},
		{"multibyte runes", `{"input":"雨が降る"}`, 4},
		{"missing fields", `{"voice":"af_bella"}`, 0},
		{"not json", `<xml/>`, 0},
		{"empty body", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			assert.Equal(t, tt.want, units(req))

			// The body must be rewound for the next handler.
			rest, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(rest))
		})
	}
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"socket address", "203.0.113.9:52110", nil, "203.0.113.9"},
		{"forwarded for", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-Ip": "203.0.113.9"}, "203.0.113.9"},
		{"blank forwarded falls through", "203.0.113.9:52110", map[string]string{"X-Forwarded-For": "  "}, "203.0.113.9"},
		{"unparsable address", "garbage", nil, admission.UnknownIdentity},
		{"empty address", "", nil, admission.UnknownIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIdentity(req))
		})
	}
}

func TestHandleStatus(t *testing.T) {
	gate := newTestGate(t, admission.Policy{
		Enabled:           true,
		RequestsPerMinute: 5,
		UnitsPerDay:       1000,
		Whitelist:         []string{"10.0.0.1"},
	}, nil)

	rec := httptest.NewRecorder()
	gate.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status admission.Status
	require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, uint(5), status.RequestsPerMinute)
	assert.Equal(t, uint(1000), status.UnitsPerDay)
	assert.Equal(t, []string{"10.0.0.1"}, status.Whitelist)
	assert.False(t, status.StoreConnected)
}

func TestHandleHealthz(t *testing.T) {
	gate := newTestGate(t, admission.Policy{}, nil)

	rec := httptest.NewRecorder()
	gate.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
