package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/config"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/metrics"
	"github.com/JakeFAU/purifier-console/internal/progress"
	"github.com/JakeFAU/purifier-console/internal/store"
)

const (
	requestTimeout   = 60 * time.Second
	readinessTimeout = 3 * time.Second
)

// Console is the operator service behind the REST handlers.
type Console interface {
	Health(ctx context.Context) error
	ListFeeds(ctx context.Context) ([]manager.Feed, error)
	CreateFeed(ctx context.Context, rssURL string) (manager.Feed, error)
	DeleteFeed(ctx context.Context, feedID int64) (manager.DeleteFeedResult, error)
	SetAutoProcess(ctx context.Context, feedID int64, enabled bool) (manager.Feed, error)
	IngestFeed(ctx context.Context, feedID int64) (manager.IngestResult, error)
	ListEpisodes(ctx context.Context, params manager.ListEpisodesParams) (manager.EpisodePage, error)
	QueueEpisodes(ctx context.Context, ids []int64) (manager.QueueResult, error)
	IgnoreEpisodes(ctx context.Context, ids []int64) (manager.IgnoreResult, error)
	RestoreEpisodes(ctx context.Context, ids []int64) (manager.RestoreResult, error)
	Actions(ctx context.Context, limit, offset int) ([]store.Action, error)
}

// ProgressSource is the live progress channel as seen by the handlers.
type ProgressSource interface {
	Progress(episodeID int64) (progress.Event, bool)
	Snapshot() map[int64]progress.Event
	State() progress.State
}

// Pinger is an optional readiness dependency such as the audit database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Console and Progress are required.
type Deps struct {
	Console  Console
	Progress ProgressSource
	Pingers  []Pinger
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the console service and progress channel.
type Server struct {
	router   chi.Router
	console  Console
	progress ProgressSource
	pingers  []Pinger
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		console:  deps.Console,
		progress: deps.Progress,
		pingers:  deps.Pingers,
		logger:   logger,
		cfg:      cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", s.listFeeds)
			r.Post("/", s.createFeed)
			r.Route("/{feed_id}", func(r chi.Router) {
				r.Delete("/", s.deleteFeed)
				r.Patch("/auto-process", s.setAutoProcess)
				r.Post("/ingest", s.ingestFeed)
			})
		})
		r.Route("/episodes", func(r chi.Router) {
			r.Get("/", s.listEpisodes)
			r.Post("/queue", s.queueEpisodes)
			r.Post("/ignore", s.ignoreEpisodes)
			r.Post("/restore", s.restoreEpisodes)
		})
		r.Route("/progress", func(r chi.Router) {
			r.Get("/", s.progressSnapshot)
			r.Get("/{episode_id}", s.episodeProgress)
		})
		r.Get("/actions", s.listActions)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz needs a healthy manager and an open progress channel. The body names
// the failing dependency.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status":   "ready",
		"manager":  "ok",
		"progress": s.progress.State().String(),
	}
	if err := s.console.Health(ctx); err != nil {
		s.logger.Warn("manager health check failed", zap.Error(err))
		body["manager"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.progress.State() != progress.StateConnected {
		status = http.StatusServiceUnavailable
	}
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness ping failed", zap.Error(err))
			body["audit"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	writeJSON(w, status, body)
}
