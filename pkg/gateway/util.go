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
	"net"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/jingyigong/kokoro-gate/pkg/admission"
)

// jsonfast is a faster json parser
var jsonfast = jsoniter.ConfigFastest

func jsonUnmarshal(data []byte, v interface{}) error {
	return jsonfast.Unmarshal(data, v)
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return jsonfast.Marshal(v)
}

// clientIdentity derives the quota identity from the request's network
// address. Proxy headers win over the socket address; when nothing usable
// is present the "unknown" sentinel is returned. Textual variants of the
// same address count as distinct identities, an accepted limitation.
func clientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the original client.
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return admission.UnknownIdentity
	}
	return host
}
