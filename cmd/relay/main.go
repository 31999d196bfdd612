// Command relay forwards Steam check_authentication requests for an API
// deployment that cannot reach Steam directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/emilythestrangee/uservoice/backend/internal/openid"
	"github.com/emilythestrangee/uservoice/backend/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        string
		path        string
		provider    string
		hashEnv     string
		timeout     time.Duration
		logLevelArg string
	)

	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", ":8081", "listen address")
	flagSet.StringVar(&path, "path", "/", "path the relay endpoint is mounted on")
	flagSet.StringVar(&provider, "provider", openid.DefaultProviderURL, "OpenID provider endpoint")
	flagSet.StringVar(&hashEnv, "hash-env", "RELAY_ACCESS_TOKEN_HASH", "environment variable holding the bcrypt hash of the access token")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "timeout for provider requests")
	flagSet.StringVar(&logLevelArg, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevelArg)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	hash := os.Getenv(hashEnv)
	if hash == "" {
		return fmt.Errorf("%s is not set", hashEnv)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	forwarder := relay.NewForwarder(provider, &http.Client{Timeout: timeout})
	relay.NewHandler(forwarder, []byte(hash), logger).Register(r, path)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", addr, "path", path, "provider", provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `relay forwards Steam OpenID check_authentication requests.

Callers authenticate with "Authorization: Bearer <token>"; the relay only
stores the bcrypt hash of that token.

Usage:
  relay [flags]

Flags:
%s`, flagSet.FlagUsages())
}
