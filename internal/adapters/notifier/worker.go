package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"health-assistant/internal/adapters/telegram"
	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

// MaxDeliveryAttempts предел повторных доставок одного события.
const MaxDeliveryAttempts = 5

const deliveredTTL = 7 * 24 * time.Hour

// Sender отправляет сообщения в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Worker пересылает события об отзывах в чат операторов.
type Worker struct {
	log        zerolog.Logger
	queue      domain.FeedbackQueue
	bot        Sender
	chatID     int64
	dedupe     domain.Cache
	attempts   map[string]int
	retryDelay time.Duration
}

// NewWorker создаёт воркер. dedupe может быть nil.
func NewWorker(log zerolog.Logger, queue domain.FeedbackQueue, bot Sender, chatID int64, dedupe domain.Cache) *Worker {
	return &Worker{
		log:        log,
		queue:      queue,
		bot:        bot,
		chatID:     chatID,
		dedupe:     dedupe,
		attempts:   make(map[string]int),
		retryDelay: time.Second,
	}
}

// Run читает очередь до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		event, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("notifier: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.process(ctx, event, ack)
	}
}

func (w *Worker) process(ctx context.Context, event domain.FeedbackEvent, ack domain.AckFunc) {
	eventLog := w.log.With().Str("event_id", event.ID).Int64("feedback_id", event.Feedback.ID).Logger()
	if event.ID == "" {
		eventLog.Error().Msg("notifier: событие без идентификатора, подтверждаем и пропускаем")
		metrics.IncNotifierDelivery("dropped")
		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
		}
		return
	}

	w.attempts[event.ID]++
	attempt := w.attempts[event.ID]
	eventLog = eventLog.With().Int("attempt", attempt).Logger()

	err := w.deliver(event)
	switch {
	case err == nil:
		delete(w.attempts, event.ID)
		metrics.IncNotifierDelivery("ok")
		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
		}
	case attempt < MaxDeliveryAttempts:
		eventLog.Warn().Err(err).Msg("notifier: доставка не удалась, повторим позже")
		metrics.IncNotifierDelivery("retry")
		if ackErr := ack(false); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("notifier: не удалось вернуть событие в очередь")
		}
		w.sleep(ctx)
	default:
		eventLog.Error().Err(err).Msg("notifier: достигнут предел попыток, событие отброшено")
		delete(w.attempts, event.ID)
		metrics.IncNotifierDelivery("dropped")
		if ackErr := ack(true); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("notifier: не удалось подтвердить событие")
		}
	}
}

func (w *Worker) deliver(event domain.FeedbackEvent) error {
	send := func() error {
		for _, part := range telegram.SplitMessage(FormatFeedback(event.Feedback)) {
			start := time.Now()
			_, err := w.bot.Send(tgbotapi.NewMessage(w.chatID, part))
			metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(w.chatID, 10), start, err)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if w.dedupe == nil {
		return send()
	}
	return w.dedupe.Once("notifier:delivered:"+event.ID, deliveredTTL, send)
}

func (w *Worker) sleep(ctx context.Context) {
	if w.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// FormatFeedback собирает текст уведомления об отзыве.
func FormatFeedback(fb domain.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 New feedback #%d (%s)\n", fb.ID, fb.Source)
	fmt.Fprintf(&b, "Rating: %s %d/5\n", strings.Repeat("⭐", clampRating(fb.Rating)), fb.Rating)
	if fb.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", fb.Name)
	}
	if fb.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", fb.Email)
	}
	if !fb.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", fb.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\n")
	b.WriteString(fb.Message)
	return b.String()
}

func clampRating(r int) int {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}
