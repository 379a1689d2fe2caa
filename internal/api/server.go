// Package api implements the gateway ingress: an HTTP server that converts
// inbound requests into request envelopes, runs each mapping entry's named
// plugins, and hands the envelope to the dispatcher.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobgate/jobgate/internal/dispatch"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/log"
)

// Dispatcher is the master-side surface the ingress needs.
type Dispatcher interface {
	Match(req *envelope.Request) (*dispatch.Matched, error)
	Dispatch(ctx context.Context, m *dispatch.Matched, req *envelope.Request) *envelope.Response
}

// HealthChecker aggregates per-queue health probes.
type HealthChecker interface {
	Check(ctx context.Context) *dispatch.HealthReport
}

// Config holds ingress server configuration.
type Config struct {
	Listen string
}

// Server is the HTTP ingress.
type Server struct {
	config     Config
	dispatcher Dispatcher
	health     HealthChecker
	plugins    *Plugins
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates an ingress server. plugins may be nil when no mapping names
// any.
func New(config Config, d Dispatcher, health HealthChecker, plugins *Plugins) *Server {
	if plugins == nil {
		plugins = NewPlugins()
	}
	return &Server{
		config:     config,
		dispatcher: d,
		health:     health,
		plugins:    plugins,
		logger:     log.WithComponent("api"),
		startedAt:  time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("gateway listening", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// routes configures the HTTP router. Every path except the ops endpoint
// funnels through the mapping table.
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.HandleFunc("/*", s.handleDispatch)

	return r
}

// handleHealthz probes every configured queue. Failure detail stays in the
// logs; the body only distinguishes ok from unavailable.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	if !report.Healthy() {
		for _, qh := range report.Queues {
			if qh.StatusCode != http.StatusOK {
				s.logger.Warn("queue unhealthy", "queue", qh.Queue, "status_code", qh.StatusCode, "error", qh.Error)
			}
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"queues":         len(report.Queues),
	})
}

// handleDispatch is the catch-all: match first, then run the matched entry's
// plugins, then dispatch. Failures before the dispatcher still carry elapsed
// time measured from arrival.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := toEnvelope(r)
	if err != nil {
		writeResponse(w, errorBody(envelope.AsError(err), start))
		return
	}

	m, err := s.dispatcher.Match(req)
	if err != nil {
		writeResponse(w, errorBody(envelope.AsError(err), start))
		return
	}

	r, err = s.plugins.Run(r, req, m.Route.Plugins)
	if err != nil {
		writeResponse(w, errorBody(envelope.AsError(err), start))
		return
	}

	writeResponse(w, s.dispatcher.Dispatch(r.Context(), m, req))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
