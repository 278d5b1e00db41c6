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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.ListenAddress)
	assert.Equal(t, "http://127.0.0.1:8880", cfg.Server.Upstream)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr())
	assert.Equal(t, 3*time.Second, cfg.Redis.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Redis.SocketTimeout)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, uint(30), cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, uint(500000), cfg.RateLimit.CharsPerDay)
	require.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:9000"
  upstream: "http://tts.internal:8880"
redis:
  host: "redis.internal"
  port: 6380
  db: 2
  password: "secret"
  socket_timeout: 500ms
rate_limit:
  enabled: true
  requests_per_minute: 5
  chars_per_day: 1000
  whitelist:
    - "10.0.0.1"
    - "10.0.0.2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddress)
	assert.Equal(t, "http://tts.internal:8880", cfg.Server.Upstream)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.SocketTimeout)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, uint(5), cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, uint(1000), cfg.RateLimit.CharsPerDay)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RateLimit.Whitelist)

	// Unset fields still get defaults.
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.MetricsAddress)
	assert.Equal(t, 3*time.Second, cfg.Redis.ConnectTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Redis.Port = 70000 }, "redis.port"},
		{"negative db", func(c *Config) { c.Redis.DB = -1 }, "redis.db"},
		{"bad upstream scheme", func(c *Config) { c.Server.Upstream = "ftp://x" }, "http or https"},
		{"upstream without host", func(c *Config) { c.Server.Upstream = "http://" }, "no host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
