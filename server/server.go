// Package server exposes the recommender over a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/plexrec/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the recommender surface served over HTTP.
// *plexrec.Recommender satisfies it.
type Service interface {
	RecommendByTitle(ctx context.Context, kind core.Kind, query string, k int) ([]core.Recommendation, error)
	RecommendForItem(ctx context.Context, kind core.Kind, position, k int) ([]core.Recommendation, error)
	Popular(ctx context.Context, kind core.Kind, k int, online bool) ([]core.Item, error)
	SearchOnline(ctx context.Context, kind core.Kind, query string, k int) ([]core.Item, error)
	AllTime(ctx context.Context, kind core.Kind, k int) ([]core.Item, error)
	Preview(ctx context.Context, kind core.Kind, n int) ([]core.Item, error)
	RecordItems(ctx context.Context, kind core.Kind, query string, ids []string) ([]*core.HistoryEntry, error)
	History(ctx context.Context, kind core.Kind, limit int) ([]*core.HistoryEntry, error)
}

// Server serves the HTTP API.
type Server struct {
	svc      Service
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
// Default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "server")
		}
	}
}

// New creates a server for svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/{kind}", func(r chi.Router) {
		r.Get("/recommend", s.recommend)
		r.Get("/items/{position}/similar", s.similar)
		r.Get("/popular", s.popular)
		r.Get("/search", s.search)
		r.Get("/alltime", s.allTime)
		r.Get("/preview", s.preview)
		r.Get("/history", s.history)
		r.Post("/history", s.recordHistory)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}
