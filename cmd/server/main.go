package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/t77yq/webhook-cronjob/internal/app"
	"github.com/t77yq/webhook-cronjob/internal/config"
	"github.com/t77yq/webhook-cronjob/internal/logging"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.Exit(run(sigCh))
}

// run executes the configured mode and returns the process exit code. A
// value on signals shuts the process down gracefully with exit code 0.
func run(signals <-chan os.Signal) int {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case sig := <-signals:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return 1
	}
	defer a.Close()

	logger.Info("Starting webhook-cronjob", zap.String("mode", string(cfg.RunMode)))

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, app.ErrDispatchFailed) {
			// Interrupted by a shutdown signal rather than a failed delivery
			logger.Info("Shutting down gracefully", zap.Error(err))
			return 0
		}
		if errors.Is(err, app.ErrDispatchFailed) {
			// The failure detail has already been logged by the dispatcher
			logger.Error("Webhook cronjob failed")
		} else {
			logger.Error("Webhook cronjob stopped with error", zap.Error(err))
		}
		return 1
	}

	return 0
}
