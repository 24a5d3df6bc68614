// calndr-sync refreshes every enabled provider calendar once and exits.
// Meant for cron or one-off runs next to the long-lived server.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/calndr/calndr/internal/cache"
	"github.com/calndr/calndr/internal/config"
	"github.com/calndr/calndr/internal/logging"
	"github.com/calndr/calndr/internal/storage/postgres"
	calsync "github.com/calndr/calndr/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger = logger.With().Str("component", "sync").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	var c cache.Cache
	if cfg.Cache.RedisURL != "" {
		if c, err = cache.NewRedis(cfg.Cache.RedisURL, logger); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, cache invalidation skipped")
			c = cache.NewMemory()
		}
	} else {
		c = cache.NewMemory()
	}
	defer c.Close()

	client := &http.Client{Timeout: cfg.Sync.GetTimeout}
	pipeline := calsync.NewPipeline(store, c, client, cfg.Sync.UserAgent, logger)

	// Individual provider failures are bookkept on their sync rows; only a
	// run that could not start at all exits non-zero (handled above).
	for kind, report := range pipeline.RunAll(ctx) {
		logger.Info().
			Str("kind", string(kind)).
			Int("total", report.Total).
			Int("successful", report.Successful).
			Int("failed", report.Failed).
			Int("events", report.EventsSynced).
			Msg("sync batch finished")
	}
}
