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

import (
	"context"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/jingyigong/kokoro-gate/pkg/admission/metrics"
	"github.com/jingyigong/kokoro-gate/pkg/admission/store"
)

const (
	minuteWindow = 60 * time.Second
	// Day counters live one hour past a full day so a counter never expires
	// mid-day under clock or boundary skew.
	dayCounterTTL = 25 * time.Hour

	decisionAdmit = "admit"
	decisionDeny  = "deny"
)

// StoreProvider yields the shared counter store handle. Acquire must be
// idempotent once connected, and must return store.ErrUnavailable instead
// of failing fatally when the store cannot be reached.
type StoreProvider interface {
	Acquire(ctx context.Context) (store.Counters, error)
	State() store.State
}

// Compile-time interface check.
var _ StoreProvider = (*store.Manager)(nil)

// Engine answers "is this request admitted?" for one identity and unit
// cost, enforcing the per-minute request ceiling and the daily unit budget.
//
// The engine never blocks legitimate traffic on infrastructure trouble:
// every store failure, at connection time or mid-check, degrades to Admit
// with a log entry (fail-open). Only a genuine quota breach produces a
// denial. It holds no per-identity locks; correctness under concurrent
// requests rests on the store's atomic INCR/INCRBY.
type Engine struct {
	policy    Policy
	whitelist map[string]struct{}
	provider  StoreProvider
	keys      *CacheKeyGenerator
	collector metrics.Collector
}

// NewEngine builds an engine from an immutable policy and an injected store
// provider. A nil collector disables metrics.
func NewEngine(policy Policy, provider StoreProvider, collector metrics.Collector) *Engine {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	whitelist := make(map[string]struct{}, len(policy.Whitelist))
	for _, id := range policy.Whitelist {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		whitelist[id] = struct{}{}
	}
	return &Engine{
		policy:    policy,
		whitelist: whitelist,
		provider:  provider,
		keys:      NewCacheKeyGenerator("rate_limit"),
		collector: collector,
	}
}

// IsWhitelisted reports whether identity is exempt from all quota checks.
func (e *Engine) IsWhitelisted(identity string) bool {
	_, ok := e.whitelist[identity]
	return ok
}

// Check decides whether a request from identity carrying units of work is
// admitted. It is safe for concurrent use; two requests from the same
// identity may race, and the store's atomic increments decide the winner.
func (e *Engine) Check(ctx context.Context, identity string, units int64) Decision {
	start := time.Now()
	d := e.check(ctx, identity, units)

	decision := decisionAdmit
	if !d.Allowed {
		decision = decisionDeny
		e.collector.RecordDenial(string(d.Reason))
	}
	e.collector.RecordCheck(decision, time.Since(start).Seconds())
	return d
}

func (e *Engine) check(ctx context.Context, identity string, units int64) Decision {
	if !e.policy.Enabled {
		return admit()
	}

	// Whitelisted callers incur zero store I/O, so the check runs before
	// connection acquisition.
	if e.IsWhitelisted(identity) {
		klog.V(4).InfoS("identity whitelisted, bypassing quota checks", "identity", identity)
		return admit()
	}

	counters, err := e.provider.Acquire(ctx)
	if err != nil {
		klog.Warningf("counter store not available, admitting request from %s", identity)
		e.collector.SetStoreUp(false)
		return admit()
	}
	e.collector.SetStoreUp(true)

	// Per-minute request ceiling. Denial here short-circuits the day check,
	// so requests denied for rate do not consume daily budget.
	minuteKey := e.keys.MinuteKey(identity)
	requests, err := counters.Incr(ctx, minuteKey)
	if err != nil {
		klog.ErrorS(err, "counter store error during minute check, admitting", "identity", identity)
		e.collector.RecordStoreFailure("incr")
		return admit()
	}
	if requests == 1 {
		// First hit in this window; the atomicity of INCR guarantees exactly
		// one caller observes 1.
		if _, err := counters.Expire(ctx, minuteKey, minuteWindow); err != nil {
			klog.ErrorS(err, "failed to set minute window expiry, admitting", "key", minuteKey)
			e.collector.RecordStoreFailure("expire")
			return admit()
		}
	}
	if requests > int64(e.policy.RequestsPerMinute) {
		klog.Warningf("identity %s exceeded per-minute request limit: %d/%d",
			identity, requests, e.policy.RequestsPerMinute)
		return deny(ReasonRequests, "too many requests, please slow down",
			requests, int64(e.policy.RequestsPerMinute))
	}

	// Daily unit budget.
	dayKey := e.keys.DayKey(identity, time.Now())
	total, err := counters.IncrBy(ctx, dayKey, units)
	if err != nil {
		klog.ErrorS(err, "counter store error during day check, admitting", "identity", identity)
		e.collector.RecordStoreFailure("incrby")
		return admit()
	}
	if total == units {
		// This add created the counter: first write today.
		if _, err := counters.Expire(ctx, dayKey, dayCounterTTL); err != nil {
			klog.ErrorS(err, "failed to set day counter expiry, admitting", "key", dayKey)
			e.collector.RecordStoreFailure("expire")
			return admit()
		}
	}
	if total > int64(e.policy.UnitsPerDay) {
		klog.Warningf("identity %s exceeded daily unit limit: %d/%d",
			identity, total, e.policy.UnitsPerDay)
		return deny(ReasonUnits, "daily quota exhausted, try again tomorrow",
			total, int64(e.policy.UnitsPerDay))
	}

	klog.V(4).InfoS("admission check passed", "identity", identity,
		"minuteRequests", requests, "dayUnits", total)
	return admit()
}

// Status reports the engine configuration and store health for the
// diagnostics endpoint.
func (e *Engine) Status() Status {
	whitelist := make([]string, 0, len(e.whitelist))
	for id := range e.whitelist {
		whitelist = append(whitelist, id)
	}
	sort.Strings(whitelist)
	return Status{
		Enabled:           e.policy.Enabled,
		RequestsPerMinute: e.policy.RequestsPerMinute,
		UnitsPerDay:       e.policy.UnitsPerDay,
		Whitelist:         whitelist,
		StoreConnected:    e.provider.State() == store.StateConnected,
	}
}
