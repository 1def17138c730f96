package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

// RedisFeedbackQueue реализует очередь событий на базе Redis lists.
type RedisFeedbackQueue struct {
	client *redis.Client
	key    string
}

var _ domain.FeedbackQueue = (*RedisFeedbackQueue)(nil)

// NewRedisFeedbackQueue создаёт очередь по указанному ключу.
func NewRedisFeedbackQueue(client *redis.Client, key string) *RedisFeedbackQueue {
	return &RedisFeedbackQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisFeedbackQueue) Enqueue(ctx context.Context, event domain.FeedbackEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди. При неуспешной обработке
// событие возвращается в хвост списка.
func (q *RedisFeedbackQueue) Receive(ctx context.Context) (domain.FeedbackEvent, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.FeedbackEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.FeedbackEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.FeedbackEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.FeedbackEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var event domain.FeedbackEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return domain.FeedbackEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, raw).Err()
		}
		return event, ack, nil
	}
}
