package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"imagebot/internal/conversation"
	"imagebot/internal/editjob"
	"imagebot/internal/infra"
	imggen "imagebot/internal/providers/image"
	"imagebot/internal/providers/synthesis"
	"imagebot/internal/queue"
	"imagebot/internal/session"
	"imagebot/internal/storage"
	"imagebot/internal/transport/telegram"
)

const pollTimeout = 10 * time.Second

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "bot")

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	sessions := session.NewPostgresStore(pool)
	if err := sessions.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare session schema")
	}

	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect object storage")
	}

	q, err := queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect message broker")
	}
	defer func() {
		_ = q.Close()
	}()

	synth, err := synthesis.NewOpenAISynthesizer(synthesis.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure synthesis backend")
	}

	images, err := imggen.NewHFGenerator(imggen.HFOptions{
		APIKey:  cfg.HFAPIKey,
		Model:   cfg.HFModel,
		BaseURL: cfg.HFBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image backend")
	}

	bot, err := telegram.NewBot(cfg.TelegramToken, pollTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect telegram")
	}

	jobs := editjob.NewCollector(store, q, logger)
	engine := conversation.NewEngine(conversation.Options{
		Sessions:     sessions,
		Synth:        synth,
		Images:       images,
		Messenger:    bot,
		Jobs:         jobs,
		Logger:       logger,
		SynthTimeout: cfg.SynthesisTimeout,
	})

	// Ops endpoint for liveness and readiness probes.
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("ops endpoint listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().Msg("bot polling started")
	bot.Listen(ctx, engine.HandleEvent)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("bot stopped")
}
