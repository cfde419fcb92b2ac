package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/app"
	"github.com/lukasbauer/livescribe/internal/httpapi"
	"github.com/lukasbauer/livescribe/internal/tui"
)

const usage = `usage: livescribe [command]

commands:
  (none)   record from the default microphone in the terminal
  serve    run the HTTP control API
  token    print a bearer token for the control API
`

func main() {
	cmd := ""
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "", "record":
		err = runTUI()
	case "serve":
		err = runServe()
	case "token":
		err = runToken(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "livescribe: %v\n", err)
		os.Exit(1)
	}
}

func setup() (app.Config, *logrus.Logger, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}

	flush := func() {}
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("sentry init failed")
		} else {
			logger.Info("sentry initialized")
			flush = func() { sentry.Flush(2 * time.Second) }
		}
	}
	return cfg, logger, flush, nil
}

func runTUI() error {
	cfg, logger, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()
	// Stderr belongs to the terminal UI.
	if cfg.LogFile == "" {
		logger.SetOutput(io.Discard)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, a.Controller(), logger)
}

func runServe() error {
	cfg, logger, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required for serve")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("init app: %w", err)
	}

	a.StartJobs()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Close()
		return fmt.Errorf("listen: %w", err)
	}

	// In-flight stops may still be waiting on their summary.
	a.Ops().StartDraining()
	logger.WithField("active_ops", a.Ops().ActiveCount()).Info("draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	a.Ops().Wait()
	return a.Close()
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	operator := fs.String("operator", "", "operator name embedded in the token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *operator == "" {
		return errors.New("-operator is required")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	token, expires, err := httpapi.GenerateToken(cfg.JWTSecret, *operator, cfg.JWTExpiry)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
