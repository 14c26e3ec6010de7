// Package config provides YAML configuration parsing for the winboard CLI.
//
// This package enables running winboard as a standalone binary with a
// configuration file, as an alternative to wiring a Controller in code.
//
// Example configuration:
//
//	base_url: ${WINBOARD_API:-http://localhost:5001/api}
//	poll_interval: 10s
//	max_reconnect_attempts: 5
//
//	auth:
//	  username: admin
//	  password: ${WINBOARD_PASSWORD}
//
//	token_store:
//	  type: file
//	  path: ~/.winboard/token.json
//
//	dashboard:
//	  port: 8080
//	  title: Voxco Production
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval is the minimum allowed polling interval. This prevents
	// accidental hammering of the backend with overly aggressive polling.
	minPollInterval = 1 * time.Second

	defaultPollInterval   = 10 * time.Second
	defaultMaxReconnects  = 5
	defaultRequestTimeout = 10 * time.Second
	defaultDashboardPort  = 8080
	defaultDashboardHost  = "127.0.0.1"
)

// Authentication modes.
const (
	AuthBackend = "backend"
	AuthStatic  = "static"
)

// Token store types.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the root configuration structure for winboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// BaseURL is the backend API root, e.g. "http://localhost:5001/api".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	// Required in backend auth mode.
	BaseURL string `yaml:"base_url"`

	// PollInterval is the time between poll cycles.
	// Accepts duration strings like "10s", "1m". Defaults to 10s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxReconnectAttempts is how many consecutive failed cycles are tolerated
	// before the session is dropped. Defaults to 5; 0 drops on first failure.
	MaxReconnectAttempts *int `yaml:"max_reconnect_attempts"`

	// RequestTimeout bounds each backend request. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	Auth       AuthConfig       `yaml:"auth"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

// AuthConfig selects how logins are checked.
type AuthConfig struct {
	// Mode is "backend" (POST /login) or "static" (StaticUsers).
	// Defaults to backend.
	Mode string `yaml:"mode"`

	// Username and Password are used by the CLI when no stored token can be
	// resumed. Both support environment variable substitution.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// StaticUsers maps usernames to passwords for static mode.
	StaticUsers map[string]string `yaml:"static_users"`
}

// TokenStoreConfig selects where the session token is persisted.
type TokenStoreConfig struct {
	// Type is memory, file or redis. Defaults to memory.
	Type string `yaml:"type"`

	// Key is the storage key. Defaults to "voxco_auth_token".
	Key string `yaml:"key"`

	// Path is the token file for type file. A leading "~/" is expanded.
	Path string `yaml:"path"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis token store.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// DashboardConfig configures the local browser dashboard.
type DashboardConfig struct {
	// Host defaults to 127.0.0.1. Set 0.0.0.0 to reach the dashboard from
	// other machines.
	Host string `yaml:"host"`

	// Port defaults to 8080.
	Port int `yaml:"port"`

	// Title defaults to "Voxco Server Dashboard".
	Title string `yaml:"title"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in base_url, credentials, the token
// file path and the redis address and password. Defaults are applied for
// every optional field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.MaxReconnectAttempts == nil {
		n := defaultMaxReconnects
		c.MaxReconnectAttempts = &n
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthBackend
	}
	if c.TokenStore.Type == "" {
		c.TokenStore.Type = StoreMemory
	}
	if c.Dashboard.Host == "" {
		c.Dashboard.Host = defaultDashboardHost
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if *c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts cannot be negative, got %d", *c.MaxReconnectAttempts)
	}
	if c.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("request_timeout cannot be negative, got %s", c.RequestTimeout.Duration())
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if c.BaseURL, err = expandEnvVars(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if c.BaseURL != "" {
		if err := validateBaseURL(c.BaseURL); err != nil {
			return err
		}
	}

	if err := c.Auth.expandAndValidate(c.BaseURL); err != nil {
		return err
	}
	if err := c.TokenStore.expandAndValidate(); err != nil {
		return err
	}

	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535, got %d", c.Dashboard.Port)
	}

	return nil
}

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url: invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("base_url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base_url must have a host")
	}
	return nil
}

func (a *AuthConfig) expandAndValidate(baseURL string) error {
	var err error
	if a.Username, err = expandEnvVars(a.Username); err != nil {
		return fmt.Errorf("auth.username: %w", err)
	}
	if a.Password, err = expandEnvVars(a.Password); err != nil {
		return fmt.Errorf("auth.password: %w", err)
	}

	switch a.Mode {
	case AuthBackend:
		if baseURL == "" {
			return fmt.Errorf("base_url is required when auth.mode is %q", AuthBackend)
		}
	case AuthStatic:
		if len(a.StaticUsers) == 0 {
			return fmt.Errorf("auth.static_users is required when auth.mode is %q", AuthStatic)
		}
		for user, pw := range a.StaticUsers {
			expanded, err := expandEnvVars(pw)
			if err != nil {
				return fmt.Errorf("auth.static_users[%s]: %w", user, err)
			}
			a.StaticUsers[user] = expanded
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthBackend, AuthStatic, a.Mode)
	}
	return nil
}

func (t *TokenStoreConfig) expandAndValidate() error {
	var err error

	switch t.Type {
	case StoreMemory:
	case StoreFile:
		if t.Path == "" {
			return fmt.Errorf("token_store.path is required for type %q", StoreFile)
		}
		if t.Path, err = expandEnvVars(t.Path); err != nil {
			return fmt.Errorf("token_store.path: %w", err)
		}
		if t.Path, err = expandHome(t.Path); err != nil {
			return fmt.Errorf("token_store.path: %w", err)
		}
	case StoreRedis:
		if t.Redis.Addr, err = expandEnvVars(t.Redis.Addr); err != nil {
			return fmt.Errorf("token_store.redis.addr: %w", err)
		}
		if t.Redis.Addr == "" {
			return fmt.Errorf("token_store.redis.addr is required for type %q", StoreRedis)
		}
		if t.Redis.Password, err = expandEnvVars(t.Redis.Password); err != nil {
			return fmt.Errorf("token_store.redis.password: %w", err)
		}
		if t.Redis.DB < 0 {
			return fmt.Errorf("token_store.redis.db cannot be negative, got %d", t.Redis.DB)
		}
		if t.Redis.TTL.Duration() < 0 {
			return fmt.Errorf("token_store.redis.ttl cannot be negative, got %s", t.Redis.TTL.Duration())
		}
	default:
		return fmt.Errorf("token_store.type must be %s, %s or %s, got %q", StoreMemory, StoreFile, StoreRedis, t.Type)
	}
	return nil
}
