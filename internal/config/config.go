// Package config loads formweave settings from a YAML file and FORMWEAVE_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "FORMWEAVE_"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Dir holds the form definitions.
	Dir        string           `yaml:"dir" mapstructure:"dir"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Generator  GeneratorConfig  `yaml:"generator" mapstructure:"generator"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Encryption EncryptionConfig `yaml:"encryption" mapstructure:"encryption"`
	// MaxAnswerSize caps respondent answers in bytes.
	MaxAnswerSize int `yaml:"max_answer_size" mapstructure:"max_answer_size"`
	// RedactPatterns are regular expressions masked out of stored answers.
	RedactPatterns []string `yaml:"redact_patterns" mapstructure:"redact_patterns"`
}

type StoreConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"`
	Path          string        `yaml:"path" mapstructure:"path"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	DSN           string        `yaml:"dsn" mapstructure:"dsn"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type GeneratorConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type HTTPConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// EncryptionConfig holds base64 encoded AES-256 keys.
type EncryptionConfig struct {
	Key          string   `yaml:"key" mapstructure:"key"`
	FallbackKeys []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		Dir:      ".",
		Store: StoreConfig{
			Backend: BackendMemory,
			Path:    ".formweave/data",
		},
		Generator: GeneratorConfig{
			Timeout: 30 * time.Second,
		},
		HTTP:          HTTPConfig{Port: 8080},
		MaxAnswerSize: 4096,
	}
}

// Load reads path (optional) over the defaults and applies environment overrides.
// A missing file is an error only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.Environ()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv maps FORMWEAVE_STORE_REDIS_ADDR style variables onto cfg.
// The first segment after the prefix picks the section when it names one.
func applyEnv(cfg *Config, environ []string) error {
	overrides := map[string]any{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		section, field, nested := strings.Cut(key, "_")
		if nested && isSection(section) {
			sub, _ := overrides[section].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
				overrides[section] = sub
			}
			sub[field] = listOrScalar(section+"."+field, value)
			continue
		}
		overrides[key] = listOrScalar(key, value)
	}
	if len(overrides) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("invalid %s environment: %w", EnvPrefix, err)
	}
	return nil
}

func isSection(name string) bool {
	switch name {
	case "store", "generator", "http", "metrics", "encryption":
		return true
	}
	return false
}

// listOrScalar splits comma separated values for list settings.
func listOrScalar(key, value string) any {
	switch key {
	case "redact_patterns", "encryption.fallback_keys":
		if value == "" {
			return []string{}
		}
		return strings.Split(value, ",")
	}
	return value
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.MaxAnswerSize < 0 {
		errs = append(errs, errors.New("max_answer_size must not be negative"))
	}
	if c.Encryption.Key != "" {
		if _, _, err := c.Encryption.Keys(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys decodes the active and fallback keys. Each must be 32 bytes.
func (e EncryptionConfig) Keys() ([]byte, [][]byte, error) {
	active, err := decodeKey(e.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption.key: %w", err)
	}
	fallback := make([][]byte, 0, len(e.FallbackKeys))
	for i, k := range e.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("got %d bytes, want 32", len(key))
	}
	return key, nil
}
