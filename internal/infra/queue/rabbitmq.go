package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

// RabbitFeedbackQueue реализует очередь событий через AMQP.
type RabbitFeedbackQueue struct {
	conn    *amqp.Connection
	queue   string
	mu      sync.Mutex
	pubCh   *amqp.Channel
	consCh  *amqp.Channel
	deliver <-chan amqp.Delivery
}

var _ domain.FeedbackQueue = (*RabbitFeedbackQueue)(nil)

// NewRabbitFeedbackQueue подключается к брокеру и объявляет durable очередь.
func NewRabbitFeedbackQueue(amqpURL, queue string) (*RabbitFeedbackQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitFeedbackQueue{conn: conn, queue: queue, pubCh: ch}, nil
}

// Enqueue публикует событие в очередь.
func (q *RabbitFeedbackQueue) Enqueue(ctx context.Context, event domain.FeedbackEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.pubCh.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.PublishedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *RabbitFeedbackQueue) Receive(ctx context.Context) (domain.FeedbackEvent, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.FeedbackEvent{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.FeedbackEvent{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return domain.FeedbackEvent{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var event domain.FeedbackEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				_ = d.Nack(false, false)
				return domain.FeedbackEvent{}, nil, fmt.Errorf("decode event: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return event, ack, nil
		}
	}
}

func (q *RabbitFeedbackQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliver != nil {
		return q.deliver, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.consCh = ch
	q.deliver = deliveries
	return deliveries, nil
}

// Close закрывает каналы и соединение.
func (q *RabbitFeedbackQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consCh != nil {
		_ = q.consCh.Close()
	}
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	return q.conn.Close()
}
