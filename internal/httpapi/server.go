// Package httpapi exposes the router's HTTP control surface: query
// dispatch, stats, registry scanning, and conversation CRUD/search/export.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanternrouter/lantern/internal/facade"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/stats"
	"github.com/lanternrouter/lantern/internal/store"
)

// Server serves Lantern's HTTP API.
type Server struct {
	router   chi.Router
	addr     string
	facade   *facade.Facade
	registry *registry.Registry
	store    *store.Store
	reload   func() error
	stats    *stats.Collector
	log      *logging.Logger
}

// Config wires a Server to the components it fronts.
type Config struct {
	Addr           string
	Facade         *facade.Facade
	Registry       *registry.Registry
	Store          *store.Store
	Reload         func() error
	AllowedOrigins []string
}

// New builds a Server with its full route table mounted.
func New(cfg Config, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		addr:     cfg.Addr,
		facade:   cfg.Facade,
		registry: cfg.Registry,
		store:    cfg.Store,
		reload:   cfg.Reload,
		stats:    stats.NewCollector(),
		log:      log.With("httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/router/query", s.handleQuery)
	r.Get("/router/stats", s.handleStats)
	r.Get("/router/cost", s.handleCost)
	r.Post("/router/config/reload", s.handleReload)
	r.Get("/system/stats", s.handleSystemStats)

	r.Post("/models/scan", s.handleScan)
	r.Get("/models/detected", s.handleDetected)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
		r.Post("/conversations/{id}/messages", s.handleAppendMessage)

		r.Get("/search", s.handleSearch)
		r.Post("/export", s.handleExport)
		r.Post("/import", s.handleImport)
	})

	s.router = r
	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("error shutting down http server")
		}
	}()

	s.log.Info().Str("addr", s.addr).Msg("starting http server")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowSet[origin] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
