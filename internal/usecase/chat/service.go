package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

var (
	ErrEmptyInput = errors.New("empty message")
	ErrBusy       = errors.New("previous message is still being answered")
)

const (
	NoticeRateLimited = "Rate limit exceeded. Please try again in a moment."
	NoticeUsageLimit  = "AI usage limit reached. Please contact support."
	NoticeFailed      = "Failed to send message. Please try again."
)

// RenderFunc получает снимок истории после каждого изменения.
type RenderFunc func(messages []domain.ChatMessage)

// Service отправляет сообщения ассистенту и ведёт историю диалога.
type Service struct {
	streamer domain.ChatStreamer
	metrics  domain.BusinessMetricRepo
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис чата. metricsRepo может быть nil.
func NewService(streamer domain.ChatStreamer, metricsRepo domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{streamer: streamer, metrics: metricsRepo, log: logger, now: time.Now}
}

// Send добавляет сообщение пользователя, потоково получает ответ и обновляет историю.
// При ошибке сообщения этого хода удаляются из истории.
func (s *Service) Send(ctx context.Context, conv *Conversation, input string, render RenderFunc) (string, error) {
	content := strings.TrimSpace(input)
	if content == "" {
		return "", ErrEmptyInput
	}
	history, err := conv.begin(content)
	if err != nil {
		return "", err
	}
	defer conv.finish()
	notify(render, history)

	start := s.now()
	var (
		fragments     int
		firstFragment time.Duration
	)
	text, err := s.streamer.StreamChat(ctx, history, func(accumulated string) {
		if fragments == 0 {
			firstFragment = s.now().Sub(start)
		}
		fragments++
		notify(render, conv.reply(accumulated))
	})
	if err != nil {
		notify(render, conv.rollback())
		result := resultOf(err)
		metrics.ObserveChatStream(result, fragments, firstFragment)
		if result == "rate_limited" || result == "usage_limit" {
			s.record(ctx, domain.BusinessMetricEventChatRejected, map[string]any{"reason": err.Error()})
		}
		s.log.Warn().Err(err).Int("fragments", fragments).Msg("chat: ответ не получен")
		return "", fmt.Errorf("chat: stream: %w", err)
	}
	metrics.ObserveChatStream("ok", fragments, firstFragment)
	s.record(ctx, domain.BusinessMetricEventChatCompleted, map[string]any{
		"fragments": fragments,
		"length":    len([]rune(text)),
	})
	return text, nil
}

func (s *Service) record(ctx context.Context, event string, metadata map[string]any) {
	if s.metrics == nil {
		return
	}
	err := s.metrics.RecordBusinessMetric(ctx, domain.BusinessMetric{Event: event, Metadata: metadata, OccurredAt: s.now()})
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("chat: не удалось записать бизнес-метрику")
	}
}

func notify(render RenderFunc, messages []domain.ChatMessage) {
	if render != nil {
		render(messages)
	}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUsageLimit):
		return "usage_limit"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Notice возвращает текст уведомления для пользователя.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrRateLimited):
		return NoticeRateLimited
	case errors.Is(err, domain.ErrUsageLimit):
		return NoticeUsageLimit
	default:
		return NoticeFailed
	}
}
