package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/backhaul/internal/api/handler"
	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/events"
	"github.com/edvin/backhaul/internal/storage"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	hub            *events.Hub
	pool           *pgxpool.Pool
	temporalClient temporalclient.Client
	cfg            *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, store storage.ObjectStore, temporalClient temporalclient.Client, cfg *config.Config) *Server {
	hub := events.NewHub(logger)
	services := core.NewServices(pool, store, hub, temporalClient, cfg)

	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		hub:            hub,
		pool:           pool,
		temporalClient: temporalClient,
		cfg:            cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Event stream (auth via query param inside the handler; the WebSocket
	// API cannot send custom headers).
	ev := handler.NewEvents(s.hub, s.services.APIKey, s.logger)
	s.router.Get("/events", ev.Subscribe)

	// User surface, authenticated by API key.
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.services.APIKey))

		agent := handler.NewAgent(s.services.Agent)
		r.Get("/agents", agent.List)
		r.Post("/agents", agent.Register)
		r.Get("/agents/{id}", agent.Get)
		r.Delete("/agents/{id}", agent.Delete)

		cfg := handler.NewBackupConfig(s.services.BackupConfig)
		r.Get("/backup-configs", cfg.List)
		r.Post("/backup-configs", cfg.Create)
		r.Get("/backup-configs/{id}", cfg.Get)
		r.Put("/backup-configs/{id}", cfg.Update)
		r.Delete("/backup-configs/{id}", cfg.Delete)
		r.Post("/backup-configs/{id}/run", cfg.Run)

		log := handler.NewBackupLog(s.services.BackupLog, s.services.Verify)
		r.Get("/backups", log.List)
		r.Get("/backups/{id}", log.Get)
		r.Post("/backups/reconcile", log.Reconcile)
		r.Post("/backups/mark-failed", log.MarkFailed)
		r.Post("/backups/timeout", log.Timeout)

		assessment := handler.NewAssessment(s.services.Assessment)
		r.Post("/assessments", assessment.Create)
		r.Get("/assessments/{id}", assessment.Get)
		r.Get("/assessments/{id}/cost", assessment.Cost)

		alert := handler.NewAlert(s.services.Alert)
		r.Get("/alerts", alert.List)
		r.Post("/alerts/{id}/acknowledge", alert.Acknowledge)

		apiKey := handler.NewAPIKey(s.services.APIKey)
		r.Post("/api-keys", apiKey.Create)
		r.Delete("/api-keys/{id}", apiKey.Revoke)

		dashboard := handler.NewDashboard(s.services.Dashboard)
		r.Get("/dashboard/stats", dashboard.Stats)

		search := handler.NewSearch(s.services.Search)
		r.Get("/search", search.Search)
	})

	// Agent surface, authenticated by agent bearer token. Every
	// authenticated call doubles as a liveness signal.
	s.router.Route("/agent/v1", func(r chi.Router) {
		r.Use(mw.AgentAuth(s.services.Agent))

		daemon := handler.NewDaemon(
			s.services.Agent,
			s.services.BackupConfig,
			s.services.BackupLog,
			s.services.Assessment,
			s.services.Upload,
			s.logger,
		)
		r.Post("/heartbeat", daemon.Heartbeat)
		r.Get("/configs", daemon.Configs)
		r.Post("/backups", daemon.StartBackup)
		r.Post("/backups/{id}/complete", daemon.CompleteBackup)
		r.Get("/assessments", daemon.Assessments)
		r.Post("/assessments/{id}/report", daemon.ReportAssessment)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
