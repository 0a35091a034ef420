package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// quietPaths are served without request logging
var quietPaths = []string{"/health"}

// NewRouter builds the routes served by the process. The metrics route is
// mounted only when a handler is given. Request logs go to stdout next to
// the application logs, as JSON or as uncoloured console lines.
func NewRouter(metrics http.Handler, jsonLogs bool) *chi.Mux {
	requestLogger := httplog.NewLogger("webhook-cronjob", httplog.Options{
		JSON:    jsonLogs,
		Concise: true,
	})
	if jsonLogs {
		requestLogger = requestLogger.Output(os.Stdout)
	} else {
		requestLogger = requestLogger.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		})
	}

	return newRouter(metrics, requestLogger)
}

func newRouter(metrics http.Handler, requestLogger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(requestLogger, quietPaths))
	r.Get("/health", health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

// health is the liveness probe. It does not depend on the webhook
// configuration.
func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Server serves the router until its context is cancelled
type Server struct {
	logger   *zap.Logger
	srv      *http.Server
	listener net.Listener
}

// New creates a server listening on port. Port 0 picks a free port.
func New(port int, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		logger: logger.Named("server"),
		srv: &http.Server{
			Addr:              ":" + strconv.Itoa(port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}
}

// Listen binds the listening socket so bind errors surface at startup.
// Calling it again after a successful bind is a no-op.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves requests until ctx is cancelled, then shuts down with a
// bounded timeout.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("address", s.listener.Addr().String()))
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}
