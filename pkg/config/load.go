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
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file, applies defaults for anything left
// unset, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills in default values for unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "0.0.0.0:8000"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = "0.0.0.0:9090"
	}
	if cfg.Server.Upstream == "" {
		cfg.Server.Upstream = "http://127.0.0.1:8880"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "127.0.0.1"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.ConnectTimeout == 0 {
		cfg.Redis.ConnectTimeout = 3 * time.Second
	}
	if cfg.Redis.SocketTimeout == 0 {
		cfg.Redis.SocketTimeout = 2 * time.Second
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = 3
	}

	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 30
	}
	if cfg.RateLimit.CharsPerDay == 0 {
		cfg.RateLimit.CharsPerDay = 500000
	}
}

// Validate checks the configuration for values that cannot work.
func Validate(cfg *Config) error {
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("redis.port %d out of range", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", cfg.Redis.DB)
	}
	u, err := url.Parse(cfg.Server.Upstream)
	if err != nil {
		return fmt.Errorf("server.upstream %q is not a valid URL: %w", cfg.Server.Upstream, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.upstream %q must use http or https", cfg.Server.Upstream)
	}
	if u.Host == "" {
		return fmt.Errorf("server.upstream %q has no host", cfg.Server.Upstream)
	}
	return nil
}
