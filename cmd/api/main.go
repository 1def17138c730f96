package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"health-assistant/internal/adapters/assistant"
	"health-assistant/internal/adapters/httpapi"
	"health-assistant/internal/adapters/repo"
	"health-assistant/internal/domain"
	"health-assistant/internal/infra/cache"
	"health-assistant/internal/infra/config"
	"health-assistant/internal/infra/db"
	httpinfra "health-assistant/internal/infra/http"
	"health-assistant/internal/infra/log"
	"health-assistant/internal/infra/metrics"
	openai "health-assistant/internal/infra/openai"
	"health-assistant/internal/infra/queue"
	"health-assistant/internal/usecase/chat"
	"health-assistant/internal/usecase/doctors"
	"health-assistant/internal/usecase/feedback"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var (
		sharedCache domain.Cache = cache.NewMemory()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
		}
		defer redisClient.Close()
		sharedCache = cache.NewRedis(redisClient)
	}

	feedbackQueue, closeQueue, err := queue.Open(cfg.RabbitURL, redisClient, cfg.Queues.Feedback)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: очередь отзывов недоступна")
	}
	defer func() { _ = closeQueue() }()
	if feedbackQueue == nil {
		logger.Warn().Msg("api: брокер не настроен, уведомления об отзывах отключены")
	}

	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	healthBot := assistant.NewHealthBot(aiClient, cfg.OpenAI.Model, cfg.OpenAI.HistoryLimit)

	chatService := chat.NewService(healthBot, repoAdapter, log.Component(logger, "chat"))
	doctorsService := doctors.NewService(repoAdapter, sharedCache, cfg.Cache.DoctorsTTL, repoAdapter, log.Component(logger, "doctors"))
	feedbackService := feedback.NewService(repoAdapter, feedbackQueue, repoAdapter, log.Component(logger, "feedback"))

	limiter := httpinfra.NewIPRateLimiter(cfg.Chat.RatePerMinute, cfg.Chat.RateBurst)
	handler := httpapi.NewHandler(healthBot, chatService, doctorsService, feedbackService, limiter, log.Component(logger, "httpapi"))

	srv := httpinfra.NewServer(log.Component(logger, "http"), cfg.HTTP.CORSOrigins)
	handler.Register(srv.Router)

	metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
}
