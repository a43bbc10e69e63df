// ABOUTME: Runs the in-memory fake travel backend over HTTP for local demos of the vnguide CLI
// ABOUTME: Usage: vnguide-fake [--addr 127.0.0.1:8000] [--jwt-secret s] [--issue-token subject]

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/vnguide/internal/auth"
	"github.com/2389/vnguide/internal/fakebackend"
)

type options struct {
	addr       string
	secret     string
	issueToken string
	tokenTTL   time.Duration
	rps        float64
	burst      int
	debug      bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "vnguide-fake",
		Short:         "Serve an in-memory travel assistant backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.issueToken != "" {
				return issueToken(cmd, opts)
			}
			return serve(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:8000", "listen address")
	f.StringVar(&opts.secret, "jwt-secret", os.Getenv("VNGUIDE_FAKE_SECRET"), "require HS256 bearer tokens signed with this secret (min 32 bytes)")
	f.StringVar(&opts.issueToken, "issue-token", "", "print a token for this subject and exit")
	f.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of issued tokens")
	f.Float64Var(&opts.rps, "rps", 0, "per-client requests per second, 0 for unlimited")
	f.IntVar(&opts.burst, "burst", 10, "per-client burst when --rps is set")
	f.BoolVar(&opts.debug, "debug", false, "debug logging")
	return cmd
}

func issueToken(cmd *cobra.Command, opts *options) error {
	if opts.secret == "" {
		return errors.New("--issue-token requires --jwt-secret")
	}
	verifier, err := auth.NewJWTVerifierFromSecret([]byte(opts.secret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(opts.issueToken, opts.tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func serve(ctx context.Context, opts *options) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	backendOpts := fakebackend.Options{
		Logger:    logger,
		RateLimit: fakebackend.RateLimit{RPS: opts.rps, Burst: opts.burst},
	}
	if opts.secret != "" {
		verifier, err := auth.NewJWTVerifierFromSecret([]byte(opts.secret))
		if err != nil {
			return err
		}
		backendOpts.Verifier = verifier
	}
	backend, err := fakebackend.New(backendOpts)
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.addr, err)
	}
	srv := &http.Server{
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("fake backend listening",
		"addr", ln.Addr().String(),
		"api", "http://"+ln.Addr().String()+"/api",
		"auth", backendOpts.Verifier != nil,
		"rps", opts.rps)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
