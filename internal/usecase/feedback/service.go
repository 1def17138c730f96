package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

const (
	MaxNameLength    = 100
	MaxEmailLength   = 255
	MaxMessageLength = 1000
	MinRating        = 1
	MaxRating        = 5

	// SuccessText показывается пользователю после сохранения отзыва.
	SuccessText = "Thank you for your feedback!"
	// FailureText показывается, если отзыв не удалось сохранить.
	FailureText = "Failed to submit feedback. Please try again."
)

var (
	ErrNameTooLong      = errors.New("Name must be less than 100 characters")
	ErrEmailInvalid     = errors.New("Invalid email address")
	ErrEmailTooLong     = errors.New("Email must be less than 255 characters")
	ErrMessageEmpty     = errors.New("Message cannot be empty")
	ErrMessageTooLong   = errors.New("Message must be less than 1000 characters")
	ErrRatingMissing    = errors.New("Please select a rating")
	ErrRatingOutOfRange = errors.New("Rating must be between 1 and 5")
)

// Input сырые поля формы.
type Input struct {
	Name    string
	Email   string
	Message string
	Rating  int
	Source  domain.FeedbackSource
}

// Validate проверяет поля формы и возвращает нормализованный отзыв.
func Validate(in Input) (domain.Feedback, error) {
	name := strings.TrimSpace(in.Name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return domain.Feedback{}, ErrNameTooLong
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if !validEmail(email) {
			return domain.Feedback{}, ErrEmailInvalid
		}
		if utf8.RuneCountInString(email) > MaxEmailLength {
			return domain.Feedback{}, ErrEmailTooLong
		}
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return domain.Feedback{}, ErrMessageEmpty
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return domain.Feedback{}, ErrMessageTooLong
	}
	if in.Rating == 0 {
		return domain.Feedback{}, ErrRatingMissing
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return domain.Feedback{}, ErrRatingOutOfRange
	}
	source := in.Source
	if source == "" {
		source = domain.FeedbackSourceWeb
	}
	return domain.Feedback{Name: name, Email: email, Message: message, Rating: in.Rating, Source: source}, nil
}

// IsValidation сообщает, является ли ошибка ошибкой валидации формы.
func IsValidation(err error) bool {
	for _, target := range []error{ErrNameTooLong, ErrEmailInvalid, ErrEmailTooLong, ErrMessageEmpty, ErrMessageTooLong, ErrRatingMissing, ErrRatingOutOfRange} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// Service сохраняет отзывы и уведомляет операторов.
type Service struct {
	repo    domain.FeedbackRepo
	queue   domain.FeedbackQueue
	metrics domain.BusinessMetricRepo
	log     zerolog.Logger
	now     func() time.Time
}

// NewService создаёт сервис отзывов. queue и metricsRepo могут быть nil.
func NewService(repo domain.FeedbackRepo, queue domain.FeedbackQueue, metricsRepo domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, queue: queue, metrics: metricsRepo, log: logger, now: time.Now}
}

// Submit валидирует и сохраняет отзыв. Публикация в очередь не влияет на результат.
func (s *Service) Submit(ctx context.Context, in Input) (domain.Feedback, error) {
	fb, err := Validate(in)
	if err != nil {
		metrics.IncFeedback("invalid")
		return domain.Feedback{}, err
	}
	saved, err := s.repo.SaveFeedback(ctx, fb)
	if err != nil {
		metrics.IncFeedback("error")
		return domain.Feedback{}, fmt.Errorf("сохранение отзыва: %w", err)
	}
	if s.queue != nil {
		event := domain.FeedbackEvent{ID: uuid.NewString(), Feedback: saved, PublishedAt: s.now().UTC()}
		if err := s.queue.Enqueue(ctx, event); err != nil {
			s.log.Warn().Err(err).Int64("feedback_id", saved.ID).Msg("feedback: не удалось опубликовать событие")
		}
	}
	if s.metrics != nil {
		err := s.metrics.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event: domain.BusinessMetricEventFeedbackSubmitted,
			Metadata: map[string]any{
				"feedback_id": saved.ID,
				"rating":      saved.Rating,
				"source":      string(saved.Source),
			},
			OccurredAt: s.now(),
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("feedback: не удалось записать бизнес-метрику")
		}
	}
	metrics.IncFeedback("ok")
	return saved, nil
}
