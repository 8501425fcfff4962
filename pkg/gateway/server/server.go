package server

import (
	"log/slog"
	"net/http"

	"github.com/paperwave/studio/pkg/engine/session"
	"github.com/paperwave/studio/pkg/engine/sessions"
	"github.com/paperwave/studio/pkg/gateway/config"
	"github.com/paperwave/studio/pkg/gateway/handlers"
	"github.com/paperwave/studio/pkg/gateway/mw"
	"github.com/paperwave/studio/pkg/gateway/ratelimit"
	"github.com/paperwave/studio/pkg/papers"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *sessions.Registry
	limiter  *ratelimit.Limiter
	catalog  *papers.Client
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := sessions.NewRegistry(func(id string) *session.Session {
		return session.New(id, session.Options{
			Logger:           logger,
			BaseURL:          cfg.UpstreamBaseURL,
			StartTimeout:     cfg.SessionStartTimeout,
			SettleDelay:      cfg.CommitSettleDelay,
			SubscriberBuffer: cfg.SubscriberBuffer,
		})
	}, sessions.Options{
		Logger:       logger,
		IdleTimeout:  cfg.SessionIdleTimeout,
		ReapInterval: cfg.SessionReapInterval,
	})

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: registry,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxConcurrentFeeds:    cfg.LimitMaxConcurrentFeeds,
		}),
		catalog: papers.NewClient(cfg.ArxivBaseURL, logger),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})

	sh := handlers.SessionsHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Registry: s.registry,
	}
	s.mux.HandleFunc("POST /v1/sessions/{id}/start", sh.Start)
	s.mux.HandleFunc("POST /v1/sessions/{id}/audio", sh.Audio)
	s.mux.HandleFunc("POST /v1/sessions/{id}/commit", sh.Commit)
	s.mux.HandleFunc("POST /v1/sessions/{id}/text", sh.Text)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", sh.Stop)

	s.mux.Handle("GET /v1/sessions/{id}/subscribe", handlers.SubscribeHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Registry: s.registry,
		Limiter:  s.limiter,
	})

	s.mux.Handle("POST /api/papers", handlers.PapersHandler{
		Config: s.cfg,
		Logger: s.logger,
		Client: s.catalog,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Registry exposes the live-session registry, mainly for shutdown draining.
func (s *Server) Registry() *sessions.Registry {
	return s.registry
}

// DrainSessions stops the reaper and every live session.
func (s *Server) DrainSessions() {
	s.registry.Close()
}
