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

package admission

import "encoding/json"

// UnknownIdentity is the sentinel used when the caller's network address
// cannot be determined.
const UnknownIdentity = "unknown"

// Reason is the machine-readable cause of a denial, stable across releases
// so clients can pick a retry strategy (short backoff vs. wait until
// tomorrow).
type Reason string

const (
	// ReasonRequests means the per-minute request ceiling was exceeded.
	ReasonRequests Reason = "requests"
	// ReasonUnits means the rolling daily unit budget was exhausted.
	ReasonUnits Reason = "units"
)

// Policy is the immutable per-process quota configuration.
type Policy struct {
	Enabled           bool
	RequestsPerMinute uint
	UnitsPerDay       uint
	// Whitelist lists identities exempt from all checks. Entries are
	// trimmed; blanks are dropped.
	Whitelist []string
}

// Decision is the outcome of an admission check. Denials are ordinary
// values, never errors: only genuine policy breaches are user-visible, and
// they carry enough structure for the serving layer to render a 429.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       Reason `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	CurrentUsage int64  `json:"currentUsage,omitempty"`
	LimitMax     int64  `json:"limitMax,omitempty"`
}

func (d *Decision) JSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

func admit() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason, message string, usage, limit int64) Decision {
	return Decision{
		Allowed:      false,
		Reason:       reason,
		Message:      message,
		CurrentUsage: usage,
		LimitMax:     limit,
	}
}

// Status is a read-only snapshot of the engine configuration and store
// health, intended for a diagnostics endpoint.
type Status struct {
	Enabled           bool     `json:"enabled"`
	RequestsPerMinute uint     `json:"requestsPerMinute"`
	UnitsPerDay       uint     `json:"unitsPerDay"`
	Whitelist         []string `json:"whitelist"`
	StoreConnected    bool     `json:"storeConnected"`
}
