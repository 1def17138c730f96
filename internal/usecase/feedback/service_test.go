package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/queue"
)

type stubRepo struct {
	saved []domain.Feedback
	err   error
}

func (s *stubRepo) SaveFeedback(ctx context.Context, fb domain.Feedback) (domain.Feedback, error) {
	if s.err != nil {
		return domain.Feedback{}, s.err
	}
	fb.ID = int64(len(s.saved) + 1)
	s.saved = append(s.saved, fb)
	return fb, nil
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.FeedbackEvent) error {
	return errors.New("broker unavailable")
}

func (failingQueue) Receive(context.Context) (domain.FeedbackEvent, domain.AckFunc, error) {
	return domain.FeedbackEvent{}, nil, errors.New("not implemented")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{name: "minimal", in: Input{Message: "ok", Rating: 5}},
		{name: "full", in: Input{Name: "Ann", Email: "ann@example.com", Message: "Great", Rating: 1}},
		{name: "empty message", in: Input{Message: "   ", Rating: 4}, want: ErrMessageEmpty},
		{name: "long message", in: Input{Message: strings.Repeat("я", 1001), Rating: 4}, want: ErrMessageTooLong},
		{name: "message at limit", in: Input{Message: strings.Repeat("я", 1000), Rating: 4}},
		{name: "no rating", in: Input{Message: "hi"}, want: ErrRatingMissing},
		{name: "rating too high", in: Input{Message: "hi", Rating: 6}, want: ErrRatingOutOfRange},
		{name: "negative rating", in: Input{Message: "hi", Rating: -1}, want: ErrRatingOutOfRange},
		{name: "bad email", in: Input{Email: "not-an-email", Message: "hi", Rating: 3}, want: ErrEmailInvalid},
		{name: "display name email", in: Input{Email: "Ann <ann@example.com>", Message: "hi", Rating: 3}, want: ErrEmailInvalid},
		{name: "long email", in: Input{Email: strings.Repeat("a", 250) + "@example.com", Message: "hi", Rating: 3}, want: ErrEmailTooLong},
		{name: "long name", in: Input{Name: strings.Repeat("n", 101), Message: "hi", Rating: 3}, want: ErrNameTooLong},
		{name: "message checked before rating", in: Input{Message: ""}, want: ErrMessageEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.in)
			if tt.want == nil && err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want != nil && !IsValidation(err) {
				t.Fatal("error must be reported as validation error")
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	fb, err := Validate(Input{Name: "  Ann ", Email: " ann@example.com ", Message: "\n Thanks \t", Rating: 5})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if fb.Name != "Ann" || fb.Email != "ann@example.com" || fb.Message != "Thanks" || fb.Source != domain.FeedbackSourceWeb {
		t.Fatalf("unexpected feedback %+v", fb)
	}
}

func TestSubmitRejectsInvalidBeforeRepo(t *testing.T) {
	repo := &stubRepo{}
	q := queue.NewMemoryFeedbackQueue(1)
	svc := NewService(repo, q, nil, zerolog.Nop())
	for _, in := range []Input{{Message: "", Rating: 5}, {Message: "hi", Rating: 0}} {
		if _, err := svc.Submit(context.Background(), in); !IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
	if len(repo.saved) != 0 {
		t.Fatal("repository must not be called for invalid input")
	}
}

func TestSubmitPublishesEvent(t *testing.T) {
	repo := &stubRepo{}
	q := queue.NewMemoryFeedbackQueue(1)
	svc := NewService(repo, q, nil, zerolog.Nop())
	saved, err := svc.Submit(context.Background(), Input{Message: "Helpful", Rating: 4, Source: domain.FeedbackSourceTelegram})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved.ID != 1 || saved.Source != domain.FeedbackSourceTelegram {
		t.Fatalf("unexpected saved %+v", saved)
	}
	event, ack, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку очереди: %v", err)
	}
	_ = ack(true)
	if event.ID == "" || event.Feedback.ID != 1 || event.Feedback.Message != "Helpful" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestSubmitQueueFailureIsNotFatal(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, failingQueue{}, nil, zerolog.Nop())
	if _, err := svc.Submit(context.Background(), Input{Message: "hi", Rating: 3}); err != nil {
		t.Fatalf("queue failure must not fail submission: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatal("feedback must be saved")
	}
}

func TestSubmitRepoFailure(t *testing.T) {
	repo := &stubRepo{err: errors.New("insert failed")}
	svc := NewService(repo, nil, nil, zerolog.Nop())
	_, err := svc.Submit(context.Background(), Input{Message: "hi", Rating: 3})
	if !errors.Is(err, repo.err) || IsValidation(err) {
		t.Fatalf("unexpected error %v", err)
	}
}
