// ABOUTME: Builds the CLI's object graph from config: logger, API client, preferences and session
// ABOUTME: Shared by the REPL and every one-shot subcommand

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/auth"
	"github.com/2389/vnguide/internal/config"
	"github.com/2389/vnguide/internal/i18n"
	"github.com/2389/vnguide/internal/prefs"
	"github.com/2389/vnguide/internal/render"
	"github.com/2389/vnguide/internal/session"
)

// globalFlags are the persistent flags on the root command.
type globalFlags struct {
	configPath string
	apiURL     string
	lang       string
	seed       string
	noColor    bool
	verbose    bool
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client
	token  *auth.Source
	prefs  *prefs.Store
	sess   *session.Session
	out    *render.Renderer

	closers []func() error
}

// newApp loads configuration and wires the session. Language precedence is
// --lang, then the remembered preference, then config and VNGUIDE_LANG.
func newApp(ctx context.Context, flags *globalFlags, stdout io.Writer) (*app, error) {
	path, explicit := config.Path(flags.configPath)
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.apiURL != "" {
		cfg.Backend.BaseURL = flags.apiURL
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("--api-url: %w", err)
		}
	}

	var flagLang i18n.Lang
	if flags.lang != "" {
		lang, ok := i18n.Parse(flags.lang)
		if !ok {
			return nil, fmt.Errorf("--lang must be %q or %q", i18n.Vietnamese, i18n.English)
		}
		flagLang = lang
	}

	logger, closeLog, err := setupLogger(cfg.Logging, flags.verbose)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	logger.Debug("configuration loaded",
		"config", path,
		"base_url", cfg.Backend.BaseURL,
		"language", cfg.Language)

	a.token = auth.NewSource(auth.Discover(cfg.Auth.Token), logger)
	a.client, err = api.New(api.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Token:   a.token.Token,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	var sessPrefs session.Preferences
	if !cfg.State.Disabled {
		p, err := prefs.Open(cfg.StatePath(), logger)
		if err != nil {
			logger.Warn("preferences unavailable, continuing without them", "path", cfg.StatePath(), "error", err)
		} else {
			a.prefs = p
			sessPrefs = p
			a.closers = append(a.closers, p.Close)
		}
	}

	lang, _ := i18n.Parse(cfg.Language)
	a.sess, err = session.New(session.Options{
		Backend:     a.client,
		Prefs:       sessPrefs,
		Language:    lang,
		RestoreLast: cfg.State.RestoreLast,
		MarkerTTL:   cfg.Deletion.MarkerTTL,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	a.sess.Start(ctx)
	if flagLang != "" && flagLang != a.sess.Language() {
		if err := a.sess.SetLanguage(ctx, flagLang); err != nil {
			logger.Warn("failed to apply --lang", "error", err)
		}
	}

	a.out = render.New(stdout, flags.noColor)
	return a, nil
}

// Close releases the session, preferences and log file in reverse order.
func (a *app) Close() {
	if a.sess != nil {
		a.sess.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
}
