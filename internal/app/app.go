package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/t77yq/webhook-cronjob/internal/config"
	"github.com/t77yq/webhook-cronjob/internal/events"
	"github.com/t77yq/webhook-cronjob/internal/logging"
	"github.com/t77yq/webhook-cronjob/internal/model"
	"github.com/t77yq/webhook-cronjob/internal/monitor"
	"github.com/t77yq/webhook-cronjob/internal/scheduler"
	"github.com/t77yq/webhook-cronjob/internal/server"
	"github.com/t77yq/webhook-cronjob/internal/webhook"
)

const scheduleName = "webhook"

// ErrDispatchFailed is returned by a one-shot run whose dispatch failed
var ErrDispatchFailed = errors.New("webhook dispatch failed")

// Dispatcher performs one webhook delivery attempt
type Dispatcher interface {
	Dispatch(ctx context.Context) *webhook.Outcome
}

// App drives dispatches according to the configured run mode
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	dispatcher Dispatcher
	server     *server.Server
	closers    []func()
}

// New creates an app from already built parts. dispatcher may be nil only
// in server mode; srv may be nil when no HTTP surface is wanted.
func New(cfg config.Config, logger *zap.Logger, dispatcher Dispatcher, srv *server.Server) *App {
	return &App{
		cfg:        cfg,
		logger:     logger.Named("app"),
		dispatcher: dispatcher,
		server:     srv,
	}
}

// Build wires the dispatcher, its observers and the HTTP surface from cfg.
// cfg must have been validated.
func Build(cfg config.Config, logger *zap.Logger) (*App, error) {
	var (
		observers      []webhook.OutcomeObserver
		closers        []func()
		metricsHandler http.Handler
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.ServesHTTP() {
		metrics, err := monitor.NewMetrics(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		observers = append(observers, metrics)
		metricsHandler = metrics.Handler()
		closers = append(closers, func() {
			if err := metrics.Shutdown(context.Background()); err != nil {
				logger.Warn("Failed to shut down metrics", zap.Error(err))
			}
		})
	}

	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		observers = append(observers, publisher)
		closers = append(closers, publisher.Close)
	}

	webhookURL := cfg.WebhookURL
	if cfg.RunMode == config.ModeServer && webhookURL != "" {
		if err := config.ValidateWebhookURL(webhookURL); err != nil {
			logger.Warn("Ignoring invalid WEBHOOK_URL", zap.Error(err))
			webhookURL = ""
		}
	}

	var dispatcher Dispatcher
	if webhookURL != "" {
		d, err := webhook.NewDispatcher(webhook.Config{
			URL:     webhookURL,
			Payload: model.NewWebhookPayload(),
			Timeout: cfg.WebhookTimeout,
		}, logger, observers...)
		if err != nil {
			closeAll()
			return nil, err
		}
		dispatcher = d
	}

	var srv *server.Server
	if cfg.ServesHTTP() {
		router := server.NewRouter(metricsHandler, cfg.LogFormat == logging.FormatJSON)
		srv = server.New(cfg.Port, router, logger)
	}

	a := New(cfg, logger, dispatcher, srv)
	a.closers = closers
	return a, nil
}

// Close releases the observers created by Build
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Run runs the configured mode until it completes or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.RunMode {
	case config.ModeOnce:
		return a.runOnce(ctx)
	case config.ModeSchedule:
		return a.runSchedule(ctx)
	case config.ModeServer:
		return a.runServer(ctx)
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidRunMode, a.cfg.RunMode)
	}
}

func (a *App) runOnce(ctx context.Context) error {
	if a.dispatcher == nil {
		return config.ErrMissingWebhookURL
	}

	// A shutdown signal abandons the attempt instead of cancelling it.
	result := make(chan *webhook.Outcome, 1)
	go func() {
		result <- a.dispatcher.Dispatch(context.WithoutCancel(ctx))
	}()

	select {
	case outcome := <-result:
		if !outcome.Succeeded() {
			return fmt.Errorf("%w: %w", ErrDispatchFailed, outcome.Err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully")
		return nil
	}
}

func (a *App) runSchedule(ctx context.Context) error {
	if a.dispatcher == nil {
		return config.ErrMissingWebhookURL
	}

	// Ticks must not be cancelled by shutdown; they are abandoned instead.
	jobCtx := context.WithoutCancel(ctx)

	sched := scheduler.NewCronScheduler(a.logger)
	err := sched.AddSchedule(scheduleName, a.cfg.Schedule(), func() {
		a.dispatcher.Dispatch(jobCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule webhook: %w", err)
	}

	serverDone, err := a.startServer(ctx)
	if err != nil {
		return err
	}

	sched.Start()
	a.logger.Info("Webhook cronjob started",
		zap.String("url", a.cfg.WebhookURL),
		zap.String("expression", a.cfg.CronExpression),
		zap.String("timezone", a.cfg.CronTimezone))

	select {
	case <-ctx.Done():
	case err := <-serverDone:
		sched.Stop()
		return err
	}

	a.logger.Info("Shutting down gracefully")
	sched.Stop()

	if serverDone != nil {
		return <-serverDone
	}
	return nil
}

func (a *App) runServer(ctx context.Context) error {
	if a.server == nil {
		return errors.New("server mode requires an HTTP server")
	}

	serverDone, err := a.startServer(ctx)
	if err != nil {
		return err
	}

	switch {
	case a.cfg.RunAsCronjob && a.dispatcher == nil:
		a.logger.Warn("RUN_AS_CRONJOB is set but no valid WEBHOOK_URL is configured, skipping startup send")
	case a.cfg.RunAsCronjob:
		go func() {
			outcome := a.dispatcher.Dispatch(context.WithoutCancel(ctx))
			if !outcome.Succeeded() {
				a.logger.Warn("Startup dispatch failed, server keeps running",
					zap.String("attempt_id", outcome.ID))
			}
		}()
	}

	err = <-serverDone
	if ctx.Err() != nil {
		a.logger.Info("Shutting down gracefully")
	}
	return err
}

// startServer binds the HTTP server, when there is one, and serves it in
// the background. The returned channel yields the result of Serve and is
// nil when there is no server.
func (a *App) startServer(ctx context.Context) (<-chan error, error) {
	if a.server == nil {
		return nil, nil
	}

	if err := a.server.Listen(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- a.server.Serve(ctx)
	}()
	return done, nil
}
