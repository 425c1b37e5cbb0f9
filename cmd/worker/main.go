package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagebot/internal/editjob"
	"imagebot/internal/inference"
	"imagebot/internal/infra"
	"imagebot/internal/queue"
	"imagebot/internal/storage"
	"imagebot/internal/transport/telegram"
)

const (
	pollTimeout     = 10 * time.Second
	endpointTimeout = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	if cfg.InferenceEndpoint == "" {
		logger.Fatal().Msg("worker: INFERENCE_ENDPOINT is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect object storage")
	}

	q, err := queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueName)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect message broker")
	}
	defer func() {
		_ = q.Close()
	}()

	// The worker only sends; it never polls for updates.
	bot, err := telegram.NewBot(cfg.TelegramToken, pollTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect telegram")
	}

	endpoint := inference.NewAsyncEndpoint(cfg.InferenceEndpoint, cfg.InferenceAPIKey, endpointTimeout)
	client := inference.NewClient(store, endpoint, cfg.PollInterval, cfg.PollMaxWait, logger)
	processor := editjob.NewProcessor(store, client, bot, logger)

	grp, runCtx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.WorkerConcurrency)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	runErr := processor.Run(runCtx, q, func(fn func()) {
		grp.Go(func() error {
			fn()
			return nil
		})
	})
	_ = grp.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
