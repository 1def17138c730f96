package queue

import (
	"context"

	"health-assistant/internal/domain"
)

// MemoryFeedbackQueue буферизированная очередь в памяти для локального запуска без брокера.
type MemoryFeedbackQueue struct {
	events chan domain.FeedbackEvent
}

var _ domain.FeedbackQueue = (*MemoryFeedbackQueue)(nil)

// NewMemoryFeedbackQueue создаёт очередь заданной ёмкости.
func NewMemoryFeedbackQueue(size int) *MemoryFeedbackQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryFeedbackQueue{events: make(chan domain.FeedbackEvent, size)}
}

// Enqueue кладёт событие, блокируясь при переполнении до отмены контекста.
func (q *MemoryFeedbackQueue) Enqueue(ctx context.Context, event domain.FeedbackEvent) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive ждёт следующее событие. Неуспешная обработка возвращает событие в очередь.
func (q *MemoryFeedbackQueue) Receive(ctx context.Context) (domain.FeedbackEvent, domain.AckFunc, error) {
	select {
	case event := <-q.events:
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), event)
		}
		return event, ack, nil
	case <-ctx.Done():
		return domain.FeedbackEvent{}, nil, ctx.Err()
	}
}
