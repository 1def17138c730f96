package queue

import (
	"github.com/redis/go-redis/v9"

	"health-assistant/internal/domain"
)

// Open выбирает брокер: RabbitMQ при заданном URL, иначе Redis list.
// Без обоих возвращает nil, публикация событий тогда отключена.
func Open(rabbitURL string, redisClient *redis.Client, name string) (domain.FeedbackQueue, func() error, error) {
	if rabbitURL != "" {
		q, err := NewRabbitFeedbackQueue(rabbitURL, name)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	}
	if redisClient != nil {
		return NewRedisFeedbackQueue(redisClient, name), func() error { return nil }, nil
	}
	return nil, func() error { return nil }, nil
}
