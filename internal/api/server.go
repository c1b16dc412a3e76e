// Package api exposes orchestration runs and cache statistics over HTTP
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/config"
	"github.com/ultratest-hq/ultra/internal/orchestrator"
)

// RunFunc starts one orchestration run
type RunFunc func(ctx context.Context, opts orchestrator.Options) (*orchestrator.Report, error)

// Server represents the API server
type Server struct {
	cfg    *config.Config
	router *chi.Mux
	cache  *cache.SmartCache
	run    RunFunc

	mu         sync.Mutex
	running    bool
	lastReport *orchestrator.Report
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, c *cache.SmartCache, run RunFunc) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		cache:  c,
		run:    run,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/cache/stats", s.cacheStats)
		r.Post("/cache/cleanup", s.cacheCleanup)
		r.Delete("/cache", s.cacheClear)

		r.Post("/runs", s.startRun)
		r.Get("/runs/last", s.lastRun)
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "caching disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

func (s *Server) cacheCleanup(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "caching disabled")
		return
	}

	removed, err := s.cache.CleanupExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) cacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "caching disabled")
		return
	}

	if err := s.cache.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startRunRequest is the POST /runs body
type startRunRequest struct {
	Root      string `json:"root"`
	Category  string `json:"category,omitempty"`
	FailFast  *bool  `json:"fail_fast,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	SinceRev  string `json:"since_rev,omitempty"`
	Benchmark bool   `json:"benchmark,omitempty"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Root == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	s.running = true
	s.mu.Unlock()

	failFast := true
	if req.FailFast != nil {
		failFast = *req.FailFast
	}

	opts := orchestrator.Options{
		Root:      req.Root,
		Category:  req.Category,
		FailFast:  failFast,
		BatchSize: req.BatchSize,
		SinceRev:  req.SinceRev,
		Benchmark: req.Benchmark,
	}

	go func() {
		report, err := s.run(context.Background(), opts)

		s.mu.Lock()
		s.running = false
		if report != nil {
			s.lastReport = report
		}
		s.mu.Unlock()

		if err != nil {
			log.Error().Err(err).Msg("orchestration run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	report := s.lastReport
	running := s.running
	s.mu.Unlock()

	if report == nil {
		if running {
			writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
			return
		}
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
