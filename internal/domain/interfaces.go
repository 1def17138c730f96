package domain

import (
	"context"
	"time"
)

// ChatStreamer отправляет историю диалога и потоково получает ответ ассистента.
// onUpdate вызывается с накопленным текстом после каждого нового фрагмента.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []ChatMessage, onUpdate func(accumulated string)) (string, error)
}

// DoctorRepo читает справочник врачей.
type DoctorRepo interface {
	// ListAvailableDoctors возвращает доступных врачей, отсортированных по рейтингу по убыванию.
	ListAvailableDoctors(ctx context.Context) ([]Doctor, error)
}

// FeedbackRepo сохраняет отзывы.
type FeedbackRepo interface {
	SaveFeedback(ctx context.Context, fb Feedback) (Feedback, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
