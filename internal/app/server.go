// Package app wires the process together: env settings, routing config with
// hot reload, the state store backend, and the HTTP server with its
// middleware stack.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/llmrouter/llmrouter/internal/auth"
	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/events"
	"github.com/llmrouter/llmrouter/internal/httpapi"
	"github.com/llmrouter/llmrouter/internal/idempotency"
	"github.com/llmrouter/llmrouter/internal/logging"
	"github.com/llmrouter/llmrouter/internal/metrics"
	"github.com/llmrouter/llmrouter/internal/ratelimit"
	"github.com/llmrouter/llmrouter/internal/state"
	"github.com/llmrouter/llmrouter/internal/tracing"
	"github.com/llmrouter/llmrouter/internal/upstream"
)

type Server struct {
	cfg Config

	r *chi.Mux

	routeCfg atomic.Pointer[config.Config]
	verifier *auth.Verifier

	store   state.Store
	limiter *ratelimit.Limiter
	replay  *idempotency.Cache
	bus     *events.Bus
	logger  *slog.Logger

	shutdownTracing func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	routeCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: "llmrouter",
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("state store opened", slog.String("backend", cfg.StateBackend))

	m := metrics.New()
	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Minute,
		ratelimit.WithCounter(m.RateLimitedTotal))
	bus := events.NewBus()
	verifier := auth.NewVerifier(routeCfg.MasterKey, cfg.MasterKeyHash)

	client := upstream.New(
		upstream.WithTimeout(cfg.RequestTimeout),
		upstream.WithTransport(tracing.HTTPTransport(http.DefaultTransport)),
	)

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "x-api-key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(tracing.Middleware())
	r.Use(limiter.Middleware)

	replayTTL := cfg.IdempotencyTTL
	if replayTTL <= 0 {
		replayTTL = time.Minute
	}
	replayMax := cfg.IdempotencyMaxEntries
	if replayMax <= 0 {
		replayMax = 1024
	}
	replay := idempotency.New(replayTTL, replayMax)
	r.Use(idempotency.Middleware(replay))

	s := &Server{
		cfg:             cfg,
		r:               r,
		verifier:        verifier,
		store:           st,
		limiter:         limiter,
		replay:          replay,
		bus:             bus,
		logger:          logger,
		shutdownTracing: shutdownTracing,
	}
	s.routeCfg.Store(routeCfg)

	opts := httpapi.DefaultOptions()
	opts.DebugRouting = cfg.DebugRouting
	opts.OriginRetryAttempts = cfg.OriginRetryAttempts
	opts.MaxBodyBytes = cfg.MaxRequestBodyBytes

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Config:   s.routeCfg.Load,
		Store:    st,
		Upstream: client,
		Metrics:  m,
		EventBus: bus,
		Verifier: verifier,
		Logger:   logger,
		Options:  opts,
	})

	return s, nil
}

func openStore(cfg Config, logger *slog.Logger) (state.Store, error) {
	ttl := state.WithCandidateTTL(cfg.CandidateStateTTL)
	switch cfg.StateBackend {
	case BackendFile:
		return state.OpenFile(cfg.StateFilePath, logger, ttl)
	case BackendSQLite:
		return state.OpenSQLite(cfg.SQLiteDSN, cfg.CandidateStateTTL)
	default:
		return state.NewMemory(ttl), nil
	}
}

// Reload re-reads the routing config and swaps it in atomically. The master
// key is rotated with it. Called on SIGHUP.
func (s *Server) Reload() error {
	cfg, err := config.Load(s.cfg.ConfigPath)
	if err != nil {
		return err
	}
	s.routeCfg.Store(cfg)
	s.verifier.Rotate(cfg.MasterKey, s.cfg.MasterKeyHash)
	s.bus.Publish(events.Event{Type: events.EventConfigReloaded})
	s.logger.Info("config reloaded",
		slog.Int("providers", len(cfg.Providers)),
		slog.Int("aliases", len(cfg.ModelAliases)))
	return nil
}

// Config returns the current routing config snapshot.
func (s *Server) Config() *config.Config { return s.routeCfg.Load() }

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.replay != nil {
		s.replay.Stop()
	}
	if s.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.shutdownTracing(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
