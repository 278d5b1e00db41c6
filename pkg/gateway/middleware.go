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
	"bytes"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/jingyigong/kokoro-gate/pkg/admission"
)

const (
	HeaderRequestID = "X-Request-Id"

	// maxBodyBytes caps how much request body the gate buffers for unit
	// counting. Larger bodies are rejected outright: truncating them would
	// both undercount units and corrupt the request forwarded upstream.
	maxBodyBytes = 4 << 20
)

// UnitsFunc reports how many units of work a request submits (for a TTS
// backend, characters of input text). It must leave the request body
// readable for the next handler.
type UnitsFunc func(r *http.Request) int64

// denialBody matches the wire shape the backend's clients already handle.
type denialBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Server adapts the admission engine to HTTP: it extracts an identity and
// a unit count from each request, asks the engine for a decision, and
// renders denials as 429 responses. Admitted requests pass through to the
// wrapped handler untouched.
type Server struct {
	engine *admission.Engine
	units  UnitsFunc
}

// NewServer builds the HTTP adapter. A nil units function counts every
// request as zero units, leaving only the per-minute ceiling effective.
func NewServer(engine *admission.Engine, units UnitsFunc) *Server {
	return &Server{engine: engine, units: units}
}

// Admit wraps next with the quota check.
func (s *Server) Admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		identity := clientIdentity(r)

		var units int64
		if s.units != nil {
			if !bufferBody(r) {
				klog.InfoS("request body too large", "requestID", requestID,
					"identity", identity)
				writeTooLarge(w, requestID)
				return
			}
			units = s.units(r)
		}

		decision := s.engine.Check(r.Context(), identity, units)
		if !decision.Allowed {
			klog.InfoS("request denied", "requestID", requestID,
				"identity", identity, "reason", decision.Reason,
				"usage", decision.CurrentUsage, "limit", decision.LimitMax)
			writeDenial(w, requestID, &decision)
			return
		}

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r)
	})
}

func writeDenial(w http.ResponseWriter, requestID string, d *admission.Decision) {
	body, err := jsonMarshal(&denialBody{
		Error:   "rate_limit_exceeded",
		Reason:  string(d.Reason),
		Message: d.Message,
		Type:    "rate_limit_error",
	})
	if err != nil {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, requestID)
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(body)
}

// bufferBody reads the request body into memory so unit counting can
// inspect it and the backend can still read it afterwards. Reports false
// when the body exceeds maxBodyBytes, including chunked bodies that never
// declared a length.
func bufferBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err == nil && int64(len(data)) > maxBodyBytes {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return true
}

func writeTooLarge(w http.ResponseWriter, requestID string) {
	body, err := jsonMarshal(map[string]interface{}{
		"error":   "request_too_large",
		"message": "request body exceeds the maximum size",
		"type":    "invalid_request_error",
	})
	if err != nil {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, requestID)
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_, _ = w.Write(body)
}

// TextLengthFromJSON returns a UnitsFunc that counts the characters of the
// first non-empty string among the named top-level fields of a JSON body
// (e.g. "input" for OpenAI-style speech requests, "text" for the legacy
// API). The body is rewound so the wrapped handler can read it again.
// Requests without a parsable body count as zero units; the middleware has
// already rejected bodies over maxBodyBytes before this runs.
func TextLengthFromJSON(fields ...string) UnitsFunc {
	return func(r *http.Request) int64 {
		if r.Body == nil || r.ContentLength == 0 {
			return 0
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(data))
		if err != nil {
			return 0
		}

		var payload map[string]interface{}
		if err := jsonUnmarshal(data, &payload); err != nil {
			return 0
		}
		for _, field := range fields {
			if text, ok := payload[field].(string); ok && text != "" {
				return int64(utf8.RuneCountInString(text))
			}
		}
		return 0
	}
}
