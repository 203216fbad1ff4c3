package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/api/handler"
	mw "github.com/edvin/miniforge/internal/api/middleware"
	"github.com/edvin/miniforge/internal/tasklog"
)

// Pinger reports whether the app database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface routes to.
type Deps struct {
	Provisioner handler.Provisioner
	Builds      handler.BuildRunner
	Publishes   handler.PublishRunner
	Hub         *tasklog.Hub
	DB          Pinger
	Auth        mw.Authenticator
	// OriginPatterns extends the hosts allowed to open log streams.
	OriginPatterns []string
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
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
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.deps.Auth))

		// Provisioning
		app := handler.NewApp(s.deps.Provisioner)
		r.Post("/apps", app.Create)

		// Task log streams
		taskLog := handler.NewTaskLog(s.deps.Hub, s.deps.OriginPatterns)
		r.Get("/tasks/{id}/logs", taskLog.Stream)

		// Builds
		build := handler.NewBuild(s.deps.Builds)
		r.Post("/builds", build.Create)
		r.Delete("/builds/{id}", build.Stop)

		// Publishes
		publish := handler.NewPublish(s.deps.Publishes)
		r.Post("/publishes", publish.Create)
		r.Get("/publishes/{id}", publish.Get)
		r.Get("/publishes/{id}/qrcode", publish.QRCode)
		r.Delete("/publishes/{id}", publish.Stop)
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

	if err := s.deps.DB.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
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
