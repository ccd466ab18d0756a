// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the daemon's control API: health, live stream
// snapshots, debug overrides, session history and a websocket feed of
// stream state changes.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/api/middleware"
	"github.com/ManuGH/audiostream/internal/history"
	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream"
)

// StreamSource exposes the daemon's open streams.
type StreamSource interface {
	List() []stream.Snapshot
	Get(id string) (stream.Snapshot, bool)
	SetDebug(id string, p stream.DebugParameters) bool
}

// HistorySource lists finished sessions, newest first.
type HistorySource interface {
	List(ctx context.Context, limit int) ([]history.Report, error)
}

// Config controls routing and the middleware stack.
type Config struct {
	Version        string
	ServiceName    string
	RateLimit      int
	AllowedOrigins []string
	MetricsEnabled bool
	MetricsPath    string
	TracingEnabled bool
}

// Server routes the control API.
type Server struct {
	cfg     Config
	streams StreamSource
	history HistorySource
	hub     *Hub
	ready   http.Handler
	logger  zerolog.Logger
}

type Option func(*Server)

// WithHistory enables /sessions.
func WithHistory(h HistorySource) Option {
	return func(s *Server) { s.history = h }
}

// WithHub enables /streams/events.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithReadiness serves h on /readyz.
func WithReadiness(h http.Handler) Option {
	return func(s *Server) { s.ready = h }
}

func New(cfg Config, streams StreamSource, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		streams: streams,
		logger:  log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router. The metrics endpoint sits outside the rate
// limit so scrapes are never throttled.
func (s *Server) Handler() http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Recoverer)

	if s.cfg.MetricsEnabled {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		root.Method(http.MethodGet, path, promhttp.Handler())
	}

	tracing := ""
	if s.cfg.TracingEnabled {
		tracing = s.cfg.ServiceName
	}
	root.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableCORS:            len(s.cfg.AllowedOrigins) > 0,
			AllowedOrigins:        s.cfg.AllowedOrigins,
			EnableSecurityHeaders: true,
			EnableMetrics:         s.cfg.MetricsEnabled,
			TracingService:        tracing,
			EnableLogging:         true,
			RateLimit:             s.cfg.RateLimit,
		})

		r.Get("/healthz", s.handleHealth)
		if s.ready != nil {
			r.Method(http.MethodGet, "/readyz", s.ready)
		}
		r.Get("/streams", s.handleListStreams)
		if s.hub != nil {
			r.Get("/streams/events", s.hub.ServeHTTP)
		}
		r.Get("/streams/{id}", s.handleGetStream)
		r.Put("/streams/{id}/debug", s.handleSetDebug)
		r.Get("/sessions", s.handleListSessions)
	})
	return root
}
