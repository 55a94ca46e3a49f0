package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/feed"
	"github.com/mcdev12/duel/go/internal/match/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(config.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matchFeed, closeFeed := setupFeed(ctx, config)
	defer closeFeed()

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.MatchConfig = config.Game

	gatewayService, err := gateway.NewService(gatewayConfig, match.WithFeed(matchFeed))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	server := setupServer(config, gatewayService, feed.NewHealthChecker(matchFeed))

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Int("win_threshold", config.Game.WinThreshold).
			Dur("round_timeout", config.Game.RoundTimeout).
			Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop in time")
	}

	log.Info().Msg("shutdown complete")
}

type recordFeed interface {
	match.Feed
	feed.StatsSource
}

// setupFeed publishes match records to NATS when configured, otherwise to the log
func setupFeed(ctx context.Context, config *Config) (recordFeed, func()) {
	if config.Feed.NATSURL == "" {
		return feed.NewLogFeed(zerolog.DebugLevel), func() {}
	}

	natsConfig := feed.DefaultNATSConfig()
	natsConfig.URL = config.Feed.NATSURL
	natsConfig.SubjectPrefix = config.Feed.SubjectPrefix

	natsFeed, err := feed.NewNATSFeed(natsConfig)
	if err != nil {
		log.Error().Err(err).Str("nats_url", config.Feed.NATSURL).Msg("match feed unavailable, falling back to log feed")
		return feed.NewLogFeed(zerolog.InfoLevel), func() {}
	}

	go natsFeed.Run(ctx)
	return natsFeed, func() {
		if err := natsFeed.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close match feed")
		}
	}
}
