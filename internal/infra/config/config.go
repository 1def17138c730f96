package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Feedback string `envconfig:"FEEDBACK_QUEUE" default:"feedback_events"`
	} `envconfig:""`

	OpenAI struct {
		APIKey       string        `envconfig:"OPENAI_API_KEY"`
		BaseURL      string        `envconfig:"OPENAI_BASE_URL"`
		Model        string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout      time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
		HistoryLimit int           `envconfig:"CHAT_HISTORY_LIMIT" default:"20"`
	} `envconfig:""`

	Chat struct {
		URL           string  `envconfig:"CHAT_URL"`
		APIKey        string  `envconfig:"CHAT_API_KEY"`
		RatePerMinute float64 `envconfig:"CHAT_RATE_PER_MINUTE" default:"20"`
		RateBurst     int     `envconfig:"CHAT_RATE_BURST" default:"5"`
	} `envconfig:""`

	HTTP struct {
		CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Cache struct {
		DoctorsTTL      time.Duration `envconfig:"DOCTORS_CACHE_TTL" default:"5m"`
		ConversationTTL time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
	} `envconfig:""`

	Telegram struct {
		Token        string        `envconfig:"TG_BOT_TOKEN"`
		WebhookURL   string        `envconfig:"TG_WEBHOOK_URL"`
		NotifyChatID int64         `envconfig:"NOTIFY_CHAT_ID"`
		EditInterval time.Duration `envconfig:"BOT_EDIT_INTERVAL" default:"1s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
