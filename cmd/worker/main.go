package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Awaisee01/fund-sub001/internal/cache"
	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/log"
	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/queue"
	"github.com/Awaisee01/fund-sub001/internal/tasks"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Worker.LogLevel)

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	// The worker only delivers; dedupe was claimed when the task was queued.
	dispatcher := tracking.NewDispatcher(
		cfg.Tracking.Enabled,
		nil,
		nil,
		tracking.NewConversionsClient(cfg.Tracking, &http.Client{Timeout: cfg.Tracking.RequestTimeout}),
		logger.With().Str("component", "tracking").Logger(),
	)
	processor := tasks.NewProcessor(dispatcher, notify.NewMailer(cfg.Email), logger)

	consumer := queue.NewConsumer(client, queue.ConsumerOptions{
		Stream:           cfg.Redis.Stream,
		Group:            cfg.Redis.Group,
		Consumer:         cfg.Redis.Consumer,
		DeadLetterStream: cfg.Redis.DeadLetterStream,
		ClaimInterval:    cfg.Worker.ClaimInterval,
		MaxDeliveries:    cfg.Worker.MaxDeliveries,
	}, logger, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group failed")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
