package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"health-assistant/internal/adapters/assistant"
	"health-assistant/internal/adapters/bot"
	"health-assistant/internal/adapters/chatclient"
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

const (
	updateDedupTTL = 24 * time.Hour
	updateTimeout  = 3 * time.Minute
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
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
			logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
		}
		defer redisClient.Close()
		sharedCache = cache.NewRedis(redisClient)
	}

	feedbackQueue, closeQueue, err := queue.Open(cfg.RabbitURL, redisClient, cfg.Queues.Feedback)
	if err != nil {
		logger.Fatal().Err(err).Msg("очередь отзывов недоступна")
	}
	defer func() { _ = closeQueue() }()

	var streamer domain.ChatStreamer
	if cfg.Chat.URL != "" {
		client, err := chatclient.New(cfg.Chat.URL, cfg.Chat.APIKey,
			chatclient.WithTimeout(cfg.OpenAI.Timeout),
			chatclient.WithHistoryLimit(cfg.OpenAI.HistoryLimit),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный CHAT_URL")
		}
		streamer = client
	} else {
		aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		streamer = assistant.NewHealthBot(aiClient, cfg.OpenAI.Model, cfg.OpenAI.HistoryLimit)
	}

	chatService := chat.NewService(streamer, repoAdapter, log.Component(logger, "chat"))
	store := chat.NewStore(sharedCache, cfg.Cache.ConversationTTL, log.Component(logger, "chat_store"))
	doctorsService := doctors.NewService(repoAdapter, sharedCache, cfg.Cache.DoctorsTTL, repoAdapter, log.Component(logger, "doctors"))
	feedbackService := feedback.NewService(repoAdapter, feedbackQueue, repoAdapter, log.Component(logger, "feedback"))

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный TG_WEBHOOK_URL")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Error().Err(err).Msg("не удалось зарегистрировать вебхук")
		}
	}

	h := bot.NewHandler(botAPI, log.Component(logger, "bot"), chatService, store, doctorsService, feedbackService, cfg.Telegram.EditInterval)

	srv := httpinfra.NewServer(log.Component(logger, "http"), nil)
	srv.Router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := "tg:update:" + strconv.Itoa(update.UpdateID)
		err := sharedCache.Once(key, updateDedupTTL, func() error {
			// Ответ ассистента может занять минуты, вебхук отвечает сразу.
			updCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
			go func() {
				defer cancel()
				h.HandleUpdate(updCtx, update)
			}()
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Int("update_id", update.UpdateID).Msg("не удалось обработать апдейт")
		}
		w.WriteHeader(http.StatusOK)
	})

	metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
