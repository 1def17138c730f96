package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventFeedbackSubmitted фиксирует сохранение отзыва.
	BusinessMetricEventFeedbackSubmitted = "feedback_submitted"
	// BusinessMetricEventChatCompleted фиксирует полностью полученный ответ ассистента.
	BusinessMetricEventChatCompleted = "chat_completed"
	// BusinessMetricEventChatRejected фиксирует отказ провайдера (429/402).
	BusinessMetricEventChatRejected = "chat_rejected"
	// BusinessMetricEventDoctorsSearched фиксирует поиск по справочнику врачей.
	BusinessMetricEventDoctorsSearched = "doctors_searched"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
