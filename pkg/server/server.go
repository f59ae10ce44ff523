// Package server exposes the bridge's ops surface: health, status, metrics,
// event queries, and a live websocket event stream. The per-command route
// handlers live outside this repository; they consume the bridge through
// Dispatch and QueryEvents only.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/cdpbridge/pkg/bridge"
	"github.com/odvcencio/cdpbridge/pkg/events"
	"github.com/odvcencio/cdpbridge/pkg/logging"
)

// Server serves the ops HTTP surface for one bridge.
type Server struct {
	bridge *bridge.Bridge
	stream *EventStream
	log    *logging.Logger
	http   *http.Server
}

// New builds the server on the given bind address.
func New(b *bridge.Bridge, bind string, log *logging.Logger) *Server {
	s := &Server{
		bridge: b,
		stream: NewEventStream(b.Hub(), log),
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/events/{domain}", s.handleQueryEvents)
	r.Delete("/events/{domain}", s.handleClearEvents)
	r.Get("/events", s.stream.HandleWebSocket)

	s.http = &http.Server{
		Addr:              bind,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("ops server listening", slog.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP listener and closes all stream subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stream.Shutdown()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.bridge.QueryEvents(domain, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":  domain,
		"records": records,
	})
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if err := s.bridge.ClearEvents(domain); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery builds an event filter from URL query parameters:
// min_level, pattern, since (RFC 3339), limit, order (asc|desc).
func filterFromQuery(r *http.Request) (events.Filter, error) {
	var filter events.Filter
	q := r.URL.Query()

	if v := q.Get("min_level"); v != "" {
		filter.MinLevel = events.ParseSeverity(v)
	}
	filter.Pattern = q.Get("pattern")
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("since must be RFC 3339")
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if q.Get("order") == "asc" {
		filter.OldestFirst = true
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
