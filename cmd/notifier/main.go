package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"health-assistant/internal/adapters/notifier"
	"health-assistant/internal/domain"
	"health-assistant/internal/infra/cache"
	"health-assistant/internal/infra/config"
	applog "health-assistant/internal/infra/log"
	"health-assistant/internal/infra/metrics"
	"health-assistant/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	var (
		dedupe      domain.Cache
		redisClient *redis.Client
		err         error
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к Redis")
		}
		defer redisClient.Close()
		dedupe = cache.NewRedis(redisClient)
	}

	feedbackQueue, closeQueue, err := queue.Open(cfg.RabbitURL, redisClient, cfg.Queues.Feedback)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось инициализировать очередь")
	}
	defer func() { _ = closeQueue() }()
	if feedbackQueue == nil {
		logger.Fatal().Msg("notifier: не указан брокер (RABBITMQ_URL или REDIS_ADDR)")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("notifier: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	if cfg.Telegram.NotifyChatID == 0 {
		logger.Fatal().Msg("notifier: не указан чат операторов (NOTIFY_CHAT_ID)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}

	worker := notifier.NewWorker(applog.Component(logger, "notifier"), feedbackQueue, botAPI, cfg.Telegram.NotifyChatID, dedupe)

	logger.Info().Msg("notifier: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("notifier: остановлен")
}
