package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/usecase/chat"
	"health-assistant/internal/usecase/doctors"
	"health-assistant/internal/usecase/feedback"
)

type fakeAPI struct {
	sent    []string
	edits   []string
	deleted int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m.Text)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m.Text)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if _, ok := c.(tgbotapi.DeleteMessageConfig); ok {
		f.deleted++
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeStreamer struct {
	fragments []string
	err       error
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []domain.ChatMessage, onUpdate func(string)) (string, error) {
	text := ""
	for _, fragment := range f.fragments {
		text += fragment
		onUpdate(text)
	}
	return text, f.err
}

type stubRepo struct {
	saved []domain.Feedback
}

func (s *stubRepo) ListAvailableDoctors(context.Context) ([]domain.Doctor, error) {
	return []domain.Doctor{
		{ID: "1", Name: "Dr. Maria Lopez", Specialty: "Pediatrics", Location: "Miami, FL", Rating: 4.8, ExperienceYears: 12},
		{ID: "2", Name: "Dr. John Kim", Specialty: "Cardiology", Location: "Austin, TX", Rating: 4.7, ExperienceYears: 20},
	}, nil
}

func (s *stubRepo) SaveFeedback(ctx context.Context, fb domain.Feedback) (domain.Feedback, error) {
	s.saved = append(s.saved, fb)
	return fb, nil
}

func newTestHandler(streamer *fakeStreamer) (*Handler, *fakeAPI, *stubRepo) {
	api := &fakeAPI{}
	repo := &stubRepo{}
	logger := zerolog.Nop()
	h := NewHandler(api, logger,
		chat.NewService(streamer, nil, logger),
		chat.NewStore(nil, time.Hour, logger),
		doctors.NewService(repo, nil, 0, nil, logger),
		feedback.NewService(repo, nil, nil, logger),
		time.Second,
	)
	return h, api, repo
}

func message(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: 77}}}
}

func TestParseFeedback(t *testing.T) {
	tests := []struct {
		in      string
		rating  int
		message string
	}{
		{in: "5 Great app", rating: 5, message: "Great app"},
		{in: "4/5 ok", rating: 4, message: "ok"},
		{in: "3", rating: 3, message: ""},
		{in: "Loved it", rating: 0, message: "Loved it"},
	}
	for _, tt := range tests {
		rating, msg := ParseFeedback(tt.in)
		if rating != tt.rating || msg != tt.message {
			t.Fatalf("%q: got (%d, %q)", tt.in, rating, msg)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, payload := splitCommand("/Doctors@health_bot  cardio ")
	if cmd != "/doctors" || payload != "cardio" {
		t.Fatalf("got %q %q", cmd, payload)
	}
}

func TestChatEditsPlaceholder(t *testing.T) {
	h, api, _ := newTestHandler(&fakeStreamer{fragments: []string{"Drink ", "water"}})
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	h.HandleUpdate(context.Background(), message("I feel dizzy"))

	if len(api.sent) != 1 || api.sent[0] != placeholderText {
		t.Fatalf("expected single placeholder, got %q", api.sent)
	}
	// вторая промежуточная правка отсекается интервалом, финальная выводит полный текст
	if len(api.edits) != 2 || api.edits[0] != "Drink" || api.edits[1] != "Drink water" {
		t.Fatalf("unexpected edits %q", api.edits)
	}
	if msgs := h.store.Get(chatKey(77)).Messages(); len(msgs) != 3 {
		t.Fatalf("unexpected history %+v", msgs)
	}
}

func TestChatFailureDeletesPlaceholder(t *testing.T) {
	h, api, _ := newTestHandler(&fakeStreamer{err: domain.ErrRateLimited})
	h.HandleUpdate(context.Background(), message("hello"))

	if api.deleted != 1 {
		t.Fatalf("placeholder must be deleted, deleted=%d", api.deleted)
	}
	if len(api.sent) != 2 || api.sent[1] != chat.NoticeRateLimited {
		t.Fatalf("unexpected messages %q", api.sent)
	}
	if msgs := h.store.Get(chatKey(77)).Messages(); len(msgs) != 1 {
		t.Fatalf("failed turn must be rolled back, got %+v", msgs)
	}
}

func TestFeedbackCommand(t *testing.T) {
	h, api, repo := newTestHandler(&fakeStreamer{})

	h.HandleUpdate(context.Background(), message("/feedback Loved it"))
	h.HandleUpdate(context.Background(), message("/feedback 5"))
	h.HandleUpdate(context.Background(), message("/feedback 5 Loved it"))

	want := []string{"Please select a rating", "Message cannot be empty", feedback.SuccessText}
	if len(api.sent) != len(want) {
		t.Fatalf("unexpected replies %q", api.sent)
	}
	for i := range want {
		if api.sent[i] != want[i] {
			t.Fatalf("reply %d: got %q, want %q", i, api.sent[i], want[i])
		}
	}
	if len(repo.saved) != 1 || repo.saved[0].Source != domain.FeedbackSourceTelegram {
		t.Fatalf("unexpected saved %+v", repo.saved)
	}
}

func TestDoctorsCommand(t *testing.T) {
	h, api, _ := newTestHandler(&fakeStreamer{})
	h.HandleUpdate(context.Background(), message("/specialty Cardiology"))
	if len(api.sent) != 1 || !strings.Contains(api.sent[0], "Dr. John Kim") || strings.Contains(api.sent[0], "Maria") {
		t.Fatalf("unexpected reply %q", api.sent)
	}
	h.HandleUpdate(context.Background(), message("/doctors nobody"))
	if api.sent[1] != "No doctors found matching your criteria." {
		t.Fatalf("unexpected reply %q", api.sent[1])
	}
}

func TestEmergencyCommand(t *testing.T) {
	h, api, _ := newTestHandler(&fakeStreamer{})
	h.HandleUpdate(context.Background(), message("/emergency"))
	if len(api.sent) != 1 || !strings.Contains(api.sent[0], "1-800-222-1222") || !strings.Contains(api.sent[0], "988") {
		t.Fatalf("unexpected reply %q", api.sent)
	}
}
