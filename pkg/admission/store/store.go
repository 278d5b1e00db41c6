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

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by Manager.Acquire when the counter store
// cannot be reached or authenticated. Callers are expected to degrade
// gracefully (fail-open), never to treat this as fatal.
var ErrUnavailable = errors.New("counter store unavailable")

// Counters is the minimal contract the admission engine needs from the
// counter store. Incr and IncrBy must be atomic across concurrent callers;
// the engine relies on this instead of holding per-identity locks.
type Counters interface {
	// Incr atomically increments key by one, creating it at 1 if absent,
	// and returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)
	// IncrBy atomically adds delta to key, creating it at delta if absent,
	// and returns the post-add value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// Expire sets a TTL on an existing key. Returns false if the key does
	// not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Ping probes liveness of the store.
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// State describes the lifecycle of the shared store connection.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}
