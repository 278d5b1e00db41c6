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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Counters = (*RedisCounters)(nil)

// RedisCounters implements Counters on a go-redis client. Redis INCR and
// INCRBY are atomic server-side, which is what makes the engine's
// expire-on-first-hit pattern race-free.
type RedisCounters struct {
	client redis.UniversalClient
}

// NewRedisCounters wraps an existing redis client.
func NewRedisCounters(client redis.UniversalClient) *RedisCounters {
	return &RedisCounters{client: client}
}

func (r *RedisCounters) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("store: incr %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisCounters) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("store: incrby %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisCounters) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: expire %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisCounters) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

func (r *RedisCounters) Close() error {
	return r.client.Close()
}
