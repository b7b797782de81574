// Package server exposes the read-only event API, run history, metrics and
// the live-update websocket.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/handler"
	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/middleware"
	"github.com/dukerupert/eventsync/internal/store"
	ws "github.com/dukerupert/eventsync/internal/websocket"
)

type Options struct {
	Location      *time.Location
	Origins       []string // websocket origin patterns; empty accepts any
	RatePerMinute int
	RateBurst     int
}

type Server struct {
	db          *database.DB
	hub         *ws.Hub
	metrics     *metrics.Metrics
	eventStore  *store.EventStore
	eventH      *handler.EventHandler
	runH        *handler.RunHandler
	venueH      *handler.VenueHandler
	rateLimiter *middleware.RateLimiter
	origins     []string
	logger      *slog.Logger
}

func New(db *database.DB, hub *ws.Hub, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 120
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 30
	}
	eventStore := store.NewEventStore(db)
	return &Server{
		db:          db,
		hub:         hub,
		metrics:     m,
		eventStore:  eventStore,
		eventH:      handler.NewEventHandler(eventStore, opts.Location, logger.With("component", "events")),
		runH:        handler.NewRunHandler(store.NewRunStore(db), logger.With("component", "runs")),
		venueH:      handler.NewVenueHandler(store.NewVenueStore(db), logger.With("component", "venues")),
		rateLimiter: middleware.NewRateLimiter(opts.RatePerMinute, opts.RateBurst, 10*time.Minute),
		origins:     opts.Origins,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	api := http.NewServeMux()
	api.HandleFunc("GET /api/events", s.eventH.List)
	api.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	api.HandleFunc("GET /api/runs", s.runH.List)
	api.HandleFunc("GET /api/venues", s.venueH.List)
	limit := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	mux.Handle("/api/", limit(api))

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

type health struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Events   map[string]int `json:"events,omitempty"`
	Clients  int            `json:"clients"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h := health{Status: "ok", Database: s.db.Dialect, Clients: s.hub.ClientCount()}
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health ping", "error", err)
		h.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, h)
		return
	}
	if counts, err := s.eventStore.CountByStatus(); err == nil {
		h.Events = make(map[string]int, len(counts))
		for status, n := range counts {
			h.Events[string(status)] = n
		}
	}
	writeJSON(w, http.StatusOK, h)
}
