package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formweave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
dir: forms
store:
  backend: redis
  redis_addr: localhost:6379
  ttl: 24h
generator:
  base_url: http://localhost:11434/v1
  model: llama3
http:
  port: 9000
redact_patterns:
  - '\d{3}-\d{2}-\d{4}'
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "forms", cfg.Dir)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
	assert.Equal(t, "llama3", cfg.Generator.Model)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout, "unset fields keep their defaults")
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Len(t, cfg.RedactPatterns, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, []string{
		"PATH=/usr/bin",
		"FORMWEAVE_LOG_LEVEL=warn",
		"FORMWEAVE_MAX_ANSWER_SIZE=128",
		"FORMWEAVE_STORE_BACKEND=postgres",
		"FORMWEAVE_STORE_DSN=postgres://localhost/formweave",
		"FORMWEAVE_STORE_TTL=90m",
		"FORMWEAVE_HTTP_PORT=7000",
		"FORMWEAVE_METRICS_ENABLED=true",
		"FORMWEAVE_REDACT_PATTERNS=a+,b+",
	})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 128, cfg.MaxAnswerSize)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/formweave", cfg.Store.DSN)
	assert.Equal(t, 90*time.Minute, cfg.Store.TTL)
	assert.Equal(t, ".formweave/data", cfg.Store.Path, "sibling fields survive a section override")
	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"a+", "b+"}, cfg.RedactPatterns)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, []string{"FORMWEAVE_HTTP_PORT=eighty"})
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 9000\n")
	t.Setenv("FORMWEAVE_HTTP_PORT", "9100")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTP.Port)
}

func TestValidate(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "unknown store backend"},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis }, "redis_addr"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.dsn"},
		{"valid key", func(c *Config) { c.Encryption.Key = key }, ""},
		{"short key", func(c *Config) { c.Encryption.Key = base64.StdEncoding.EncodeToString([]byte("short")) }, "want 32"},
		{"bad fallback", func(c *Config) {
			c.Encryption.Key = key
			c.Encryption.FallbackKeys = []string{"%%%"}
		}, "fallback_keys[0]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestEncryptionKeys(t *testing.T) {
	raw := []byte(strings.Repeat("a", 32))
	old := []byte(strings.Repeat("b", 32))
	e := EncryptionConfig{
		Key:          base64.StdEncoding.EncodeToString(raw),
		FallbackKeys: []string{base64.StdEncoding.EncodeToString(old)},
	}
	active, fallback, err := e.Keys()
	require.NoError(t, err)
	assert.Equal(t, raw, active)
	assert.Equal(t, [][]byte{old}, fallback)
}
