package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/api"
	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/config"
	"github.com/ultratest-hq/ultra/internal/events"
	"github.com/ultratest-hq/ultra/internal/executor"
	"github.com/ultratest-hq/ultra/internal/filehash"
	"github.com/ultratest-hq/ultra/internal/history"
	"github.com/ultratest-hq/ultra/internal/monitor"
	"github.com/ultratest-hq/ultra/internal/orchestrator"
	"github.com/ultratest-hq/ultra/internal/priority"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Cache store: shared DB when configured, file-backed otherwise
	var store cache.Store
	if cfg.DatabaseURL != "" {
		store, err = cache.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to shared cache database")
		}
	} else {
		store, err = cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open cache store")
		}
	}
	defer store.Close()

	smartCache := cache.New(store, filehash.NewHasher())

	hist, err := history.Open(cfg.CacheDir)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
	}

	pub, err := events.Connect(ctx, cfg.NATSURL)
	if err != nil {
		log.Warn().Err(err).Msg("event publishing unavailable")
	}
	defer pub.Close()

	runner := func(ctx context.Context, opts orchestrator.Options) (*orchestrator.Report, error) {
		orch := orchestrator.New(
			priority.NewEngine(),
			smartCache,
			hist,
			executor.NewProcessExecutor(opts.Root, 10*time.Minute),
			monitor.New(),
			pub,
		)
		return orch.Run(ctx, opts)
	}

	srv, err := api.NewServer(cfg, smartCache, runner)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Fatal().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().Int("port", cfg.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
