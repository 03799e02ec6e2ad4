package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/crlx1q/antimat/internal/cache"
	"github.com/crlx1q/antimat/internal/chat"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/database"
	"github.com/crlx1q/antimat/internal/jobs"
	"github.com/crlx1q/antimat/internal/log"
	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/server"
	"github.com/crlx1q/antimat/internal/service"
	"github.com/crlx1q/antimat/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongo, err := database.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer mongo.Close(context.Background())

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var sender push.Sender = push.NoopSender{Logger: logger}
	if cfg.Push.Enabled {
		fcm, err := push.NewFirebaseSender(ctx, cfg.Push)
		if err != nil {
			logger.Error().Err(err).Msg("firebase init failed, push disabled")
		} else {
			sender = fcm
		}
	}

	db := mongo.DB
	users := repository.NewUserRepository(db)
	groups := repository.NewGroupRepository(db)
	penalties := repository.NewPenaltyRepository(db)
	messages := repository.NewMessageRepository(db)

	m := metrics.New()
	producer := queue.NewProducer(client, cfg.Queue.Stream, cfg.Queue.MaxLen)
	penaltyService := service.NewPenaltyService(mongo, users, groups, penalties, messages, chat.NewHub(client, logger), m, logger)
	adminService := service.NewAdminService(mongo, users, groups, penalties, messages, producer, cfg.Security, logger)

	processor := tasks.NewProcessor(push.NewDispatcher(users, sender, m, logger), penaltyService, adminService, m, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Queue.Stream,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		processor,
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group failed")
	}

	scheduler := jobs.NewScheduler(producer, cfg.Jobs, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	var metricsServer *server.MetricsServer
	if cfg.Worker.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.Worker.MetricsAddr, m, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	scheduler.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
		cancel()
	}
	time.Sleep(500 * time.Millisecond)
}
