package domain

import "context"

// FeedbackQueue описывает очередь событий об отзывах.
type FeedbackQueue interface {
	Enqueue(ctx context.Context, event FeedbackEvent) error
	Receive(ctx context.Context) (FeedbackEvent, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type AckFunc func(success bool) error
