// Package config loads the portal configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/dise/partnerportal/internal/signageos"
	"github.com/dise/partnerportal/internal/unlock"
	"github.com/dise/partnerportal/pkg/logging"
)

// EnvPrefix prefixes environment overrides: PORTAL_SERVER_ADDRESS sets
// server.address.
const EnvPrefix = "PORTAL_"

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "portal.yml"

// Config is the top-level portal configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	SignageOS SignageOSConfig `yaml:"signageos" koanf:"signageos"`
	Unlock    UnlockConfig    `yaml:"unlock" koanf:"unlock"`
	Audit     AuditConfig     `yaml:"audit" koanf:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit" koanf:"rate_limit"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	JSON  bool   `yaml:"json" koanf:"json"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address     string   `yaml:"address" koanf:"address"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" koanf:"cors_origins"`
	MaxSessions int      `yaml:"max_sessions" koanf:"max_sessions"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a reverse proxy that sets them.
	TrustProxy  bool     `yaml:"trust_proxy" koanf:"trust_proxy"`
}

// SignageOSConfig enables the unlock backend and holds its credentials.
type SignageOSConfig struct {
	Enabled  bool          `yaml:"enabled" koanf:"enabled"`
	BaseURL  string        `yaml:"base_url" koanf:"base_url"`
	XAuth    string        `yaml:"x_auth,omitempty" koanf:"x_auth"`
	APIKey   string        `yaml:"api_key,omitempty" koanf:"api_key"`
	Timeout  time.Duration `yaml:"timeout" koanf:"timeout"`
	PageSize int           `yaml:"page_size" koanf:"page_size"`
}

// UnlockConfig configures the unlock tool of the portal page.
type UnlockConfig struct {
	// Endpoint is where the tool posts requests. Empty means the local
	// backend when it is enabled.
	Endpoint string `yaml:"endpoint" koanf:"endpoint"`
	// CurlBase is written into copied cURL lines.
	CurlBase string `yaml:"curl_base" koanf:"curl_base"`
}

// AuditConfig configures the rotating audit log.
type AuditConfig struct {
	Path       string `yaml:"path" koanf:"path"`
	MaxBytes   int64  `yaml:"max_bytes" koanf:"max_bytes"`
	MaxBackups int    `yaml:"max_backups" koanf:"max_backups"`
}

// RateLimitConfig limits unlock requests per client IP.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate" koanf:"rate"`
	Burst int     `yaml:"burst" koanf:"burst"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Address:     ":5000",
			MaxSessions: 10000,
		},
		SignageOS: SignageOSConfig{
			BaseURL:  signageos.DefaultBaseURL,
			Timeout:  signageos.DefaultTimeout,
			PageSize: signageos.DefaultPageSize,
		},
		Unlock: UnlockConfig{CurlBase: unlock.PlaceholderBase},
		Audit: AuditConfig{
			Path:       "./data/audit.log",
			MaxBytes:   5 * 1024 * 1024,
			MaxBackups: 3,
		},
		RateLimit: RateLimitConfig{Rate: 1, Burst: 5},
	}
}

// legacyEnv maps the variable names of the original deployment onto
// config keys.
var legacyEnv = map[string]string{
	"SIGNAGEOS_API_BASE":     "signageos.base_url",
	"SIGNAGEOS_X_AUTH":       "signageos.x_auth",
	"SIGNAGEOS_API_KEY":      "signageos.api_key",
	"AUDIT_LOG_PATH":         "audit.path",
	"AUDIT_LOG_MAX_BYTES":    "audit.max_bytes",
	"AUDIT_LOG_BACKUP_COUNT": "audit.max_backups",
}

// Load reads configuration from the given YAML file, then overlays the
// legacy variables and finally PORTAL_* overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyKey), nil); err != nil {
		return nil, fmt.Errorf("loading legacy env: %w", err)
	}

	// PORTAL_SIGNAGEOS_BASE_URL -> signageos.base_url: only the first
	// underscore separates the section.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		// An env value arrives as one comma separated string.
		cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))
	}
	return cfg, nil
}

func legacyKey(key, value string) (string, any) {
	if key == "PORT" {
		return "server.address", ":" + value
	}
	if k, ok := legacyEnv[key]; ok {
		return k, value
	}
	return "", nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	} else if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		errs = append(errs, fmt.Errorf("server.address: %w", err))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, errors.New("server.max_sessions must be non-negative"))
	}

	if c.SignageOS.Enabled {
		if c.SignageOS.XAuth == "" && c.SignageOS.APIKey == "" {
			errs = append(errs, errors.New("signageos: x_auth or api_key is required when enabled"))
		}
		if c.SignageOS.BaseURL == "" {
			errs = append(errs, errors.New("signageos.base_url is required when enabled"))
		}
		if c.Audit.Path == "" {
			errs = append(errs, errors.New("audit.path is required when signageos is enabled"))
		}
		if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.rate and rate_limit.burst must be positive"))
		}
	}
	if c.SignageOS.Timeout < 0 {
		errs = append(errs, errors.New("signageos.timeout must be non-negative"))
	}
	if c.Audit.MaxBytes < 0 || c.Audit.MaxBackups < 0 {
		errs = append(errs, errors.New("audit.max_bytes and audit.max_backups must be non-negative"))
	}
	return errors.Join(errs...)
}

// UnlockEndpoint is the URL the unlock tool posts to. Without an explicit
// endpoint it targets the local backend over loopback, or nothing when
// the backend is disabled.
func (c *Config) UnlockEndpoint() string {
	if c.Unlock.Endpoint != "" {
		return c.Unlock.Endpoint
	}
	if !c.SignageOS.Enabled {
		return ""
	}
	_, port, err := net.SplitHostPort(c.Server.Address)
	if err != nil {
		return ""
	}
	return "http://" + net.JoinHostPort("127.0.0.1", port) + unlock.Path
}
