package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/webhook-cronjob/internal/model"
)

const (
	// UserAgent identifies the dispatcher to the webhook endpoint
	UserAgent = "webhook-cronjob/1.0.0"

	contentType     = "application/json"
	maxResponseBody = 64 * 1024
)

// OutcomeObserver receives every dispatch outcome
type OutcomeObserver interface {
	Observe(ctx context.Context, outcome *Outcome)
}

// Config holds the fixed parameters of every dispatch
type Config struct {
	URL     string
	Payload model.WebhookPayload
	// Zero means no timeout
	Timeout time.Duration
}

// Dispatcher posts the webhook payload to the configured endpoint
type Dispatcher struct {
	logger     *zap.Logger
	httpClient *http.Client
	url        string
	body       []byte
	observers  []OutcomeObserver
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(cfg Config, logger *zap.Logger, observers ...OutcomeObserver) (*Dispatcher, error) {
	body, err := json.Marshal(cfg.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Dispatcher{
		logger: logger.Named("webhook"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:       cfg.URL,
		body:      body,
		observers: observers,
	}, nil
}

// Dispatch performs exactly one delivery attempt. It never retries and
// never terminates the process; the caller decides what a failure means.
func (d *Dispatcher) Dispatch(ctx context.Context) *Outcome {
	outcome := &Outcome{
		ID:        uuid.New().String(),
		URL:       d.url,
		StartedAt: time.Now(),
	}
	logger := d.logger.With(zap.String("attempt_id", outcome.ID))

	logger.Info("Sending webhook", zap.String("url", d.url))

	d.send(ctx, outcome)
	outcome.CompletedAt = time.Now()

	d.logOutcome(logger, outcome)

	for _, observer := range d.observers {
		observer.Observe(ctx, outcome)
	}

	return outcome
}

func (d *Dispatcher) send(ctx context.Context, outcome *Outcome) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(d.body))
	if err != nil {
		outcome.Err = &UnknownError{Err: fmt.Errorf("failed to create request: %w", err)}
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		outcome.Err = classify(err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		d.logger.Warn("Failed to read response body",
			zap.String("attempt_id", outcome.ID),
			zap.Error(err))
	}

	outcome.StatusCode = resp.StatusCode
	outcome.StatusText = statusText(resp)
	outcome.Body = string(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Err = &HTTPStatusError{
			StatusCode: outcome.StatusCode,
			StatusText: outcome.StatusText,
			Body:       outcome.Body,
		}
	}
}

func (d *Dispatcher) logOutcome(logger *zap.Logger, outcome *Outcome) {
	if outcome.Succeeded() {
		fields := []zap.Field{
			zap.Int("status_code", outcome.StatusCode),
			zap.Duration("duration", outcome.Duration()),
		}
		if outcome.Body != "" {
			fields = append(fields, zap.String("response_body", outcome.Body))
		}
		logger.Info("Webhook sent successfully", fields...)
		return
	}

	detail, ok := outcome.Err.(zapcore.ObjectMarshaler)
	if !ok {
		detail = &UnknownError{Err: outcome.Err}
	}
	logger.Error("Failed to send webhook",
		zap.String("kind", string(outcome.Kind())),
		zap.Object("error_detail", detail),
		zap.Duration("duration", outcome.Duration()))
}

// classify maps an http.Client error onto the dispatch error variants.
// Only network failures (DNS, dial, connection, timeout) are transport
// errors; cancellation and client-side rejections are unknown.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &UnknownError{Err: err}
	case isTimeout(err):
		return &TransportError{Message: err.Error(), Timeout: true, Err: err}
	case isNetworkFailure(err):
		return &TransportError{Message: err.Error(), Err: err}
	default:
		return &UnknownError{Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func isNetworkFailure(err error) bool {
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
	if text == "" || text == resp.Status {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
