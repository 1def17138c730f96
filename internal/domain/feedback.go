package domain

import "time"

// FeedbackSource указывает, откуда пришёл отзыв.
type FeedbackSource string

const (
	FeedbackSourceWeb      FeedbackSource = "web"
	FeedbackSourceTelegram FeedbackSource = "telegram"
)

// Feedback представляет отзыв пользователя.
type Feedback struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Message   string         `json:"message"`
	Rating    int            `json:"rating"`
	Source    FeedbackSource `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackEvent публикуется в очередь после сохранения отзыва.
type FeedbackEvent struct {
	ID          string    `json:"event_id"`
	Feedback    Feedback  `json:"feedback"`
	PublishedAt time.Time `json:"published_at"`
}
