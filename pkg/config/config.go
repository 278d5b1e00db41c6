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

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration for the gate process.
type Config struct {
	// Server configures the HTTP front of the gate: where it listens, where
	// the protected backend lives, and where metrics are served.
	Server ServerConfig `yaml:"server"`

	// Redis configures the shared counter store connection.
	Redis RedisConfig `yaml:"redis"`

	// RateLimit is the quota policy enforced per client identity.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	// ListenAddress is where admitted traffic is accepted.
	// Default: "0.0.0.0:8000"
	ListenAddress string `yaml:"listen_address"`

	// MetricsAddress serves Prometheus metrics and diagnostics.
	// Default: "0.0.0.0:9090"
	MetricsAddress string `yaml:"metrics_address"`

	// Upstream is the base URL of the protected backend service.
	// Default: "http://127.0.0.1:8880"
	Upstream string `yaml:"upstream"`

	// ReadTimeout / WriteTimeout bound request handling. Default: 60s each;
	// synthesis responses can be slow, so these are generous.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RedisConfig contains the counter store connection settings.
type RedisConfig struct {
	// Host and Port locate the Redis instance. Default: 127.0.0.1:6379
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// DB is the Redis database index. Default: 0
	DB int `yaml:"db"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds connection establishment. Default: 3s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// SocketTimeout bounds individual reads and writes. Default: 2s
	SocketTimeout time.Duration `yaml:"socket_timeout"`

	// MaxRetries is the transparent retry count on timeouts. Default: 3
	MaxRetries int `yaml:"max_retries"`
}

// Addr returns the host:port form of the Redis address.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// RateLimitConfig is the quota policy.
type RateLimitConfig struct {
	// Enabled turns enforcement on. When false every request is admitted
	// with zero store access. Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerMinute is the short-window request ceiling per identity.
	// Default: 30
	RequestsPerMinute uint `yaml:"requests_per_minute"`

	// CharsPerDay is the rolling daily character budget per identity.
	// Default: 500000
	CharsPerDay uint `yaml:"chars_per_day"`

	// Whitelist lists identities exempt from all checks.
	Whitelist []string `yaml:"whitelist"`
}
