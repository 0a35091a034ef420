package webhook

import (
	"errors"
	"time"
)

// OutcomeKind classifies a dispatch attempt
type OutcomeKind string

const (
	KindSuccess    OutcomeKind = "success"
	KindTransport  OutcomeKind = "transport"
	KindTimeout    OutcomeKind = "timeout"
	KindHTTPStatus OutcomeKind = "http_status"
	KindUnknown    OutcomeKind = "unknown"
)

// Outcome is the result of one dispatch attempt. It is only logged and
// observed, never stored.
type Outcome struct {
	ID          string
	URL         string
	StartedAt   time.Time
	CompletedAt time.Time

	// Set whenever a response was received, including non-2xx ones
	StatusCode int
	StatusText string
	Body       string

	// nil on success, otherwise *TransportError, *HTTPStatusError or *UnknownError
	Err error
}

// Succeeded reports whether the endpoint answered with a 2xx status
func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// Duration returns how long the attempt took
func (o *Outcome) Duration() time.Duration {
	return o.CompletedAt.Sub(o.StartedAt)
}

// Kind classifies the outcome
func (o *Outcome) Kind() OutcomeKind {
	if o.Err == nil {
		return KindSuccess
	}

	var transportErr *TransportError
	var statusErr *HTTPStatusError
	switch {
	case errors.As(o.Err, &transportErr):
		if transportErr.Timeout {
			return KindTimeout
		}
		return KindTransport
	case errors.As(o.Err, &statusErr):
		return KindHTTPStatus
	default:
		return KindUnknown
	}
}
