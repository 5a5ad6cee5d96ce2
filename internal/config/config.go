// Package config manages acpd's configuration using koanf/v2.
//
// Supports a YAML file overlaid with ACP_-prefixed environment variables,
// merged on top of package defaults (SPEC_FULL.md §4.I), mirroring the
// teacher's own layered-config convention.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete acpd configuration.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	Keystore  KeystoreConfig  `koanf:"keystore"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Session   SessionConfig   `koanf:"session"`
}

// TransportConfig holds the daemon's listen configuration.
type TransportConfig struct {
	// SocketPath is the Unix domain socket path acpd listens on.
	SocketPath string `koanf:"socket_path"`
}

// KeystoreConfig holds the reference keystore's file-backed configuration.
type KeystoreConfig struct {
	// Path is the YAML file of key records (SPEC_FULL.md §4.G).
	Path string `koanf:"path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionConfig describes the daemon's default acp.Session parameters.
type SessionConfig struct {
	// DefaultKeyID identifies which keystore entry seeds the default session.
	DefaultKeyID uint32 `koanf:"default_key_id"`

	// DefaultNonce is the nonce installed on the default session at startup.
	DefaultNonce uint64 `koanf:"default_nonce"`

	// MaxLifetime is a session lifetime bound in the form acp.Session.Expired
	// takes. acpd loads and validates it (negative values are rejected) but
	// does not check session expiry or rotate the session on it.
	MaxLifetime time.Duration `koanf:"max_lifetime"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			SocketPath: "/run/acpd/acpd.sock",
		},
		Keystore: KeystoreConfig{
			Path: "/etc/acpd/keys.yml",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			DefaultKeyID: 1,
			DefaultNonce: 0,
			MaxLifetime:  24 * time.Hour,
		},
	}
}

// envPrefix is the environment variable prefix for acpd configuration.
// Variables are named ACP_<section>_<key>, e.g., ACP_METRICS_ADDR.
const envPrefix = "ACP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ACP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ACP_TRANSPORT_SOCKET_PATH -> transport.socket_path
//	ACP_KEYSTORE_PATH         -> keystore.path
//	ACP_METRICS_ADDR          -> metrics.addr
//	ACP_METRICS_PATH          -> metrics.path
//	ACP_LOG_LEVEL             -> log.level
//	ACP_LOG_FORMAT            -> log.format
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ACP_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	// Only the first underscore separates section from key, so
	// ACP_TRANSPORT_SOCKET_PATH maps to transport.socket_path.
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"transport.socket_path": defaults.Transport.SocketPath,
		"keystore.path":         defaults.Keystore.Path,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"session.default_key_id": defaults.Session.DefaultKeyID,
		"session.default_nonce":  defaults.Session.DefaultNonce,
		"session.max_lifetime":   defaults.Session.MaxLifetime.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// Validation errors.
var (
	// ErrEmptySocketPath indicates the transport socket path is empty.
	ErrEmptySocketPath = errors.New("transport.socket_path must not be empty")

	// ErrEmptyKeystorePath indicates the keystore file path is empty.
	ErrEmptyKeystorePath = errors.New("keystore.path must not be empty")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidMaxLifetime indicates a negative session max lifetime.
	ErrInvalidMaxLifetime = errors.New("session.max_lifetime must be >= 0")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Transport.SocketPath == "" {
		return ErrEmptySocketPath
	}
	if cfg.Keystore.Path == "" {
		return ErrEmptyKeystorePath
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.Session.MaxLifetime < 0 {
		return ErrInvalidMaxLifetime
	}

	return nil
}

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
