package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/webhook-cronjob/internal/webhook"
)

const (
	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
	maxReconnects  = -1
)

// DispatchEvent is the message published for every dispatch outcome
type DispatchEvent struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Succeeded   bool      `json:"succeeded"`
	Kind        string    `json:"kind"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Publisher publishes dispatch outcomes on NATS core subjects. Nothing is
// stored; subscribers that are not connected miss the event.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
	prefix string
}

// Connect dials NATS and returns a publisher using subjectPrefix
func Connect(url, subjectPrefix string, logger *zap.Logger) (*Publisher, error) {
	logger = logger.Named("events")

	nc, err := nats.Connect(url,
		nats.Name("webhook-cronjob"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	return NewPublisher(nc, subjectPrefix, logger), nil
}

// NewPublisher creates a publisher on an existing connection
func NewPublisher(nc *nats.Conn, subjectPrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		nc:     nc,
		logger: logger,
		prefix: subjectPrefix,
	}
}

// Subject returns the subject an outcome is published on
func (p *Publisher) Subject(outcome *webhook.Outcome) string {
	if outcome.Succeeded() {
		return p.prefix + ".succeeded"
	}
	return p.prefix + ".failed"
}

// Observe implements webhook.OutcomeObserver
func (p *Publisher) Observe(ctx context.Context, outcome *webhook.Outcome) {
	event := DispatchEvent{
		ID:          outcome.ID,
		URL:         outcome.URL,
		Succeeded:   outcome.Succeeded(),
		Kind:        string(outcome.Kind()),
		StatusCode:  outcome.StatusCode,
		StartedAt:   outcome.StartedAt,
		CompletedAt: outcome.CompletedAt,
		DurationMS:  outcome.Duration().Milliseconds(),
	}
	if outcome.Err != nil {
		event.Error = outcome.Err.Error()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal dispatch event", zap.Error(err))
		return
	}

	subject := p.Subject(outcome)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish dispatch event",
			zap.String("subject", subject),
			zap.String("attempt_id", outcome.ID),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published dispatch event",
		zap.String("subject", subject),
		zap.String("attempt_id", outcome.ID))
}

// Close flushes pending events and closes the connection
func (p *Publisher) Close() {
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn("Failed to flush NATS connection", zap.Error(err))
	}
	p.nc.Close()
}
