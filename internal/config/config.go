// ABOUTME: Configuration loading and parsing for the vnguide client
// ABOUTME: Supports YAML or TOML files with .env loading, env var expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/i18n"
)

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "VNGUIDE_CONFIG"

// Config represents the complete client configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend" toml:"backend"`
	Language string         `yaml:"language" toml:"language"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	State    StateConfig    `yaml:"state" toml:"state"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Deletion DeletionConfig `yaml:"deletion" toml:"deletion"`
}

// BackendConfig locates the travel assistant API
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds an optional bearer token
type AuthConfig struct {
	Token string `yaml:"token" toml:"token"`
}

// StateConfig controls the local preferences database
type StateConfig struct {
	// Path to the SQLite file. Empty uses $XDG_STATE_HOME/vnguide/state.db.
	Path string `yaml:"path" toml:"path"`
	// RestoreLast reopens the last active conversation on start.
	RestoreLast bool `yaml:"restore_last" toml:"restore_last"`
	// Disabled turns off preference persistence entirely.
	Disabled bool `yaml:"disabled" toml:"disabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"` // empty logs to stderr
}

// DeletionConfig tunes the in-flight deletion marker
type DeletionConfig struct {
	MarkerTTL    time.Duration `yaml:"-" toml:"-"`
	MarkerTTLRaw string        `yaml:"marker_ttl" toml:"marker_ttl"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Backend: BackendConfig{
			BaseURL: api.DefaultBaseURL,
			Timeout: 60 * time.Second,
		},
		Language: string(i18n.Default),
		State:    StateConfig{RestoreLast: true},
		Logging:  LoggingConfig{Level: "warn", Format: "text"},
		Deletion: DeletionConfig{MarkerTTL: 2 * time.Minute},
	}
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config is loaded first without overriding the
// environment. Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	// Raw durations must be blank so defaults survive unless the file sets them.
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, returning defaults when a non-explicit path does not exist.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		if verr := cfg.Validate(); verr != nil {
			return nil, fmt.Errorf("validating config: %w", verr)
		}
		return cfg, nil
	}
	return nil, err
}

// Path resolves the config location: flag, then VNGUIDE_CONFIG, then
// $XDG_CONFIG_HOME/vnguide/config.yaml, then ~/.config/vnguide/config.yaml.
// explicit reports whether the user named the file.
func Path(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vnguide", "config.yaml"), false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml", false
	}
	return filepath.Join(home, ".config", "vnguide", "config.yaml"), false
}

// StatePath returns the preferences database location.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "vnguide", "state.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "vnguide-state.db"
	}
	return filepath.Join(home, ".local", "state", "vnguide", "state.db")
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets VNGUIDE_API_URL and VNGUIDE_LANG win over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VNGUIDE_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("VNGUIDE_LANG"); v != "" {
		if lang, ok := i18n.Parse(v); ok {
			cfg.Language = string(lang)
		}
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url must include a host")
	}

	if !i18n.Valid(c.Language) {
		return fmt.Errorf("language must be %q or %q, got %q", i18n.Vietnamese, i18n.English, c.Language)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Deletion.MarkerTTLRaw != "" {
		cfg.Deletion.MarkerTTL, err = time.ParseDuration(cfg.Deletion.MarkerTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing deletion.marker_ttl %q: %w", cfg.Deletion.MarkerTTLRaw, err)
		}
	}

	return nil
}
