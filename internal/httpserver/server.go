// Package httpserver wires configuration, storage, cache, the scheduling
// core, the sync pipeline, and auth into one running HTTP server.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/auth"
	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/config"
	"github.com/calndr/calndr/internal/custody"
	"github.com/calndr/calndr/internal/events"
	"github.com/calndr/calndr/internal/notify"
	"github.com/calndr/calndr/internal/router"
	"github.com/calndr/calndr/internal/storage/postgres"
	calsync "github.com/calndr/calndr/internal/sync"
)

type Server struct {
	http      *http.Server
	scheduler *calsync.Scheduler
	cancel    context.CancelFunc
	logger    zerolog.Logger
}

func NewServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	store, err := postgres.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}

	var c cache.Cache
	if cfg.Cache.RedisURL != "" {
		c, err = cache.NewRedis(cfg.Cache.RedisURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process cache")
			c = cache.NewMemory()
		}
	} else {
		c = cache.NewMemory()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Str("tz", cfg.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Push.GatewayURL != "" {
		notifier = notify.NewPush(store, cfg.Push.GatewayURL, cfg.Push.AuthHeader, cfg.Push.Timeout, logger)
	}

	engine := custody.NewEngine(store, c, notifier, loc, logger)
	view := events.NewView(store, c, logger)

	headClient := &http.Client{Timeout: cfg.Sync.HeadTimeout}
	getClient := &http.Client{Timeout: cfg.Sync.GetTimeout}
	pipeline := calsync.NewPipeline(store, c, getClient, cfg.Sync.UserAgent, logger)
	discoverer := calsync.NewDiscoverer(headClient, getClient, logger)

	bearer := auth.NewBearerAuth(cfg.Auth, store, logger)
	handler := router.New(cfg, engine, view, pipeline, discoverer, store, bearer, logger)

	schedCtx, cancel := context.WithCancel(context.Background())
	scheduler := calsync.NewScheduler(pipeline, cfg.Sync.Interval, logger)
	go scheduler.Run(schedCtx)

	srv := &Server{
		http: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.HTTP.RequestTimeout,
			IdleTimeout:  120 * time.Second,
		},
		scheduler: scheduler,
		cancel:    cancel,
		logger:    logger,
	}
	cleanup := func() {
		cancel()
		c.Close()
		store.Close()
	}
	return srv, cleanup, nil
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
