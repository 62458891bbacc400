// Package dashboard exposes the monitor's state as a small JSON API: the
// latest evaluation run, its results, run history and quote cache statistics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
)

// CacheStats reports both quote caches.
type CacheStats struct {
	Options quote.CacheStats `json:"options"`
	Stocks  quote.CacheStats `json:"stocks"`
}

// StatsFunc supplies current cache statistics on demand.
type StatsFunc func() CacheStats

// Config holds server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server serves the JSON status API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	stats     StatsFunc
	logger    *logrus.Logger
	port      int
	authToken string
}

// NewServer wires the API around the run store and cache statistics source.
func NewServer(cfg Config, store storage.Interface, stats StatsFunc, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		stats:     stats,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/run", s.handleGetRun)
	s.router.Get("/api/results", s.handleGetResults)
	s.router.Get("/api/history", s.handleGetHistory)
	s.router.Get("/api/cache", s.handleGetCache)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.storage.LatestRun()
	if run == nil {
		http.Error(w, "No run recorded yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	run := s.storage.LatestRun()
	results := []*models.RollResult{}
	if run != nil && run.Results != nil {
		results = run.Results
	}
	s.writeJSON(w, results)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.storage.History())
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "Cache statistics unavailable", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
