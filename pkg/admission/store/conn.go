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
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"
)

// Config holds the connection settings for the counter store.
type Config struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	// SocketTimeout bounds individual reads and writes.
	SocketTimeout time.Duration
	// MaxRetries is the number of transparent retries go-redis performs on
	// timeouts before surfacing an error.
	MaxRetries int
}

// Manager owns the single shared connection to the counter store. It is
// constructed once at startup and passed explicitly to whoever needs the
// store; there is no package-level singleton.
//
// Acquire is idempotent: once a connection is established and probed, every
// subsequent call returns the same handle without re-probing. A failed
// Acquire leaves the manager in StateUnavailable until the next call, which
// rebuilds the connection from scratch. There is no background retry loop.
//
// During an outage concurrent callers share a single dial-and-probe
// attempt instead of queueing their own, so nobody's latency exceeds one
// attempt's configured timeouts. The mutex is only held for state reads
// and handle installs, never across network I/O, so State stays responsive
// while a connect is in flight.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	counters Counters
	state    State

	connect singleflight.Group
}

// NewManager creates a manager. No connection is attempted until Acquire.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, state: StateUninitialized}
}

// Acquire returns the shared store handle, establishing and probing the
// connection if needed. On failure it discards the partially-built client,
// logs the cause, and returns ErrUnavailable.
func (m *Manager) Acquire(ctx context.Context) (Counters, error) {
	if c := m.current(); c != nil {
		return c, nil
	}

	// The attempt is detached from the caller's cancellation: its lifetime
	// is bounded by the configured dial and socket timeouts, and one
	// caller's disconnect must not fail the probe for everyone sharing it.
	probeCtx := context.WithoutCancel(ctx)

	v, err, _ := m.connect.Do("connect", func() (interface{}, error) {
		// Another waiter may have finished the connect while this call was
		// queueing for the flight.
		if c := m.current(); c != nil {
			return c, nil
		}

		client := redis.NewClient(&redis.Options{
			Addr:         m.cfg.Addr,
			Username:     m.cfg.Username,
			Password:     m.cfg.Password,
			DB:           m.cfg.DB,
			DialTimeout:  m.cfg.DialTimeout,
			ReadTimeout:  m.cfg.SocketTimeout,
			WriteTimeout: m.cfg.SocketTimeout,
			MaxRetries:   m.cfg.MaxRetries,
		})
		counters := NewRedisCounters(client)

		if err := counters.Ping(probeCtx); err != nil {
			_ = counters.Close()
			m.setUnavailable()
			klog.ErrorS(err, "failed to connect to counter store", "addr", m.cfg.Addr)
			return nil, ErrUnavailable
		}

		m.install(counters)
		klog.InfoS("counter store connected", "addr", m.cfg.Addr, "db", m.cfg.DB)
		return counters, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Counters), nil
}

// Release closes the connection if present and resets the manager so the
// next Acquire rebuilds from scratch. Safe to call repeatedly.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counters != nil {
		if err := m.counters.Close(); err != nil {
			klog.ErrorS(err, "error closing counter store connection")
		} else {
			klog.InfoS("counter store connection closed")
		}
		m.counters = nil
	}
	m.state = StateUninitialized
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// current returns the connected handle, or nil when there is none.
func (m *Manager) current() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected {
		return m.counters
	}
	return nil
}

func (m *Manager) install(c Counters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = c
	m.state = StateConnected
}

func (m *Manager) setUnavailable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = nil
	m.state = StateUnavailable
}
