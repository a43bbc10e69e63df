// ABOUTME: Bearer token discovery for the CLI from env, config and the XDG token file
// ABOUTME: Source hands the token to the API client and warns once when it has expired

package auth

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EnvToken is the environment variable consulted first.
const EnvToken = "VNGUIDE_TOKEN"

// Discover returns the first token found in $VNGUIDE_TOKEN, configured, or the
// token file at $XDG_CONFIG_HOME/vnguide/token (~/.config when unset).
func Discover(configured string) string {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return token
	}
	if token := strings.TrimSpace(configured); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "vnguide", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Source supplies a fixed token to every request.
type Source struct {
	token  string
	info   Info
	isJWT  bool
	warned sync.Once
	now    func() time.Time
	logger *slog.Logger
}

// NewSource wraps token. An empty token sends no Authorization header.
func NewSource(token string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		token:  token,
		now:    time.Now,
		logger: logger.With("component", "auth"),
	}
	if token != "" {
		if info, err := Inspect(token); err == nil {
			s.info = info
			s.isJWT = true
		}
	}
	return s
}

// Token returns the bearer token. The backend remains the authority on
// validity, so an expired token is still sent after a single warning.
func (s *Source) Token() string {
	if s.isJWT && s.info.Expired(s.now()) {
		s.warned.Do(func() {
			s.logger.Warn("bearer token has expired",
				"subject", s.info.Subject,
				"expired_at", s.info.ExpiresAt)
		})
	}
	return s.token
}

// Info returns the decoded claims when the token is a JWT.
func (s *Source) Info() (Info, bool) {
	return s.info, s.isJWT
}
