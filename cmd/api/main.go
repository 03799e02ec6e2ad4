package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/cache"
	"github.com/crlx1q/antimat/internal/chat"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/handlers"
	"github.com/crlx1q/antimat/internal/log"
	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/server"
	"github.com/crlx1q/antimat/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongo, err := database.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}
	if err := database.EnsureIndexes(ctx, mongo.DB); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	hub := chat.NewHub(redisClient, logger)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("chat hub stopped")
		}
	}()

	m := metrics.New()
	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Mongo:   mongo,
		Cache:   redisClient,
		Store:   objectStore,
		Hub:     hub,
		Jobs:    queue.NewProducer(redisClient, cfg.Queue.Stream, cfg.Queue.MaxLen),
		Metrics: m,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, m)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdown(logger, httpServer, mongo, redisClient)
}

func shutdown(logger zerolog.Logger, srv *server.HTTPServer, mongo *database.Mongo, redisClient *redis.Client) {
	logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := mongo.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("mongo close error")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
