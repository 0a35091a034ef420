package webhook

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// A failed dispatch carries exactly one of TransportError, HTTPStatusError
// or UnknownError. Each marshals itself as the error detail of the failure
// log line.

// TransportError is returned when no HTTP response was received
type TransportError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return "webhook request timed out: " + e.Message
	}
	return "webhook transport error: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// MarshalLogObject implements zapcore.ObjectMarshaler
func (e *TransportError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	kind := KindTransport
	if e.Timeout {
		kind = KindTimeout
	}
	enc.AddString("kind", string(kind))
	enc.AddString("message", e.Message)
	return nil
}

// HTTPStatusError is returned when the endpoint answered with a non-2xx status
type HTTPStatusError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("webhook endpoint responded %d %s", e.StatusCode, e.StatusText)
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (e *HTTPStatusError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", string(KindHTTPStatus))
	enc.AddInt("status", e.StatusCode)
	enc.AddString("status_text", e.StatusText)
	if e.Body != "" {
		enc.AddString("body", e.Body)
	}
	return nil
}

// UnknownError wraps any failure that is neither a transport nor an HTTP error
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return "webhook dispatch failed: " + e.Err.Error()
}

func (e *UnknownError) Unwrap() error { return e.Err }

// MarshalLogObject implements zapcore.ObjectMarshaler
func (e *UnknownError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", string(KindUnknown))
	enc.AddString("message", e.Err.Error())
	return nil
}
