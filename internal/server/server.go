// Package server exposes a loaded pincode dataset over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/andreiashu/pinbed"
	"github.com/andreiashu/pinbed/internal/config"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/rs/cors"
)

// shutdownTimeout bounds graceful shutdown after the run context ends.
const shutdownTimeout = 30 * time.Second

// Options configures a Server.
type Options struct {
	CORS         config.CORS
	CacheTTL     time.Duration // default 24h
	CacheCleanup time.Duration // default 48h
	Logger       *slog.Logger
	// LoadError is the dataset load failure the server was started with.
	// A non-nil value marks the server as degraded.
	LoadError error
}

// Server serves the pincode resolver API.
type Server struct {
	bed     *pinbed.PinBed
	cache   *cache.Cache
	logger  *slog.Logger
	opts    Options
	started time.Time
	handler http.Handler
}

// New builds a Server over bed. A nil bed is served as an empty dataset.
func New(bed *pinbed.PinBed, opts Options) *Server {
	if bed == nil {
		bed = pinbed.FromRecords(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.CacheCleanup <= 0 {
		opts.CacheCleanup = 2 * opts.CacheTTL
	}

	s := &Server{
		bed:     bed,
		cache:   cache.New(opts.CacheTTL, opts.CacheCleanup),
		logger:  opts.Logger,
		opts:    opts,
		started: time.Now(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware and CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	// Area names may contain "/", so routes match the escaped path.
	r.UseEncodedPath()
	r.Use(recoveryMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger))
	r.Use(compressMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/health/detailed", s.handleHealthDetailed).Methods(http.MethodGet)

	api.HandleFunc("/pincodes", s.handleSearchPincodes).Methods(http.MethodGet)
	api.HandleFunc("/pincodes/{code}", s.handleGetPincode).Methods(http.MethodGet)
	api.HandleFunc("/pincodes/{code}/areas", s.handleAreas).Methods(http.MethodGet)
	api.HandleFunc("/pincodes/{code}/areas/{area}/subareas", s.handleSubAreas).Methods(http.MethodGet)

	api.HandleFunc("/locations", s.handleLocations).Methods(http.MethodPost)
	api.HandleFunc("/nearest", s.handleNearest).Methods(http.MethodGet)
	api.HandleFunc("/suggest/areas", s.handleSuggestAreas).Methods(http.MethodGet)
	api.HandleFunc("/states", s.handleStates).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{form}", s.handleSubmission).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"Origin",
		},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:         s.opts.CORS.MaxAge,
	})
	return c.Handler(r)
}

// Stale reports whether the dataset was loaded from the cache because its
// source failed.
func (s *Server) Stale() bool {
	return s.bed.SourceError() != nil
}

// Degraded reports whether the server started without its dataset.
func (s *Server) Degraded() bool {
	return s.opts.LoadError != nil
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:           s.handler,
		Addr:              addr,
		WriteTimeout:      15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr, "records", s.bed.Len(), "degraded", s.Degraded())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err, ok := <-serverErrors:
		if ok {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.cache.Flush()
	s.logger.Info("server shutdown completed")
	return nil
}
