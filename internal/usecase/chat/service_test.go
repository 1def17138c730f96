package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/cache"
)

type fakeStreamer struct {
	fragments []string
	err       error
	captured  []domain.ChatMessage
	during    func()
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []domain.ChatMessage, onUpdate func(string)) (string, error) {
	f.captured = messages
	text := ""
	for _, fragment := range f.fragments {
		text += fragment
		onUpdate(text)
		if f.during != nil {
			f.during()
		}
	}
	if f.err != nil {
		return text, f.err
	}
	return text, nil
}

type fakeMetrics struct {
	events []string
}

func (f *fakeMetrics) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	f.events = append(f.events, metric.Event)
	return nil
}

func TestSendStreamsAssistantReply(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Drink ", "water"}}
	recorder := &fakeMetrics{}
	svc := NewService(streamer, recorder, zerolog.Nop())
	conv := NewConversation()

	var renders [][]domain.ChatMessage
	text, err := svc.Send(context.Background(), conv, "  I have a headache ", func(m []domain.ChatMessage) {
		renders = append(renders, m)
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "Drink water" {
		t.Fatalf("got %q", text)
	}
	if len(streamer.captured) != 2 || streamer.captured[0].Content != Greeting || streamer.captured[1].Content != "I have a headache" {
		t.Fatalf("unexpected history sent %+v", streamer.captured)
	}
	if len(renders) != 3 {
		t.Fatalf("ожидали 3 отрисовки, получили %d", len(renders))
	}
	if last := renders[1][len(renders[1])-1]; last.Role != domain.ChatRoleAssistant || last.Content != "Drink " {
		t.Fatalf("unexpected intermediate render %+v", last)
	}
	msgs := conv.Messages()
	if len(msgs) != 3 || msgs[2].Content != "Drink water" {
		t.Fatalf("unexpected history %+v", msgs)
	}
	if conv.Loading() {
		t.Fatal("loading must be cleared")
	}
	if len(recorder.events) != 1 || recorder.events[0] != domain.BusinessMetricEventChatCompleted {
		t.Fatalf("unexpected metrics %v", recorder.events)
	}
}

func TestSendRollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		err       error
		notice    string
	}{
		{name: "rate limited", err: domain.ErrRateLimited, notice: NoticeRateLimited},
		{name: "usage cap", err: fmt.Errorf("upstream: %w", domain.ErrUsageLimit), notice: NoticeUsageLimit},
		{name: "broken mid-stream", fragments: []string{"Part"}, err: errors.New("connection reset"), notice: NoticeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeStreamer{fragments: tt.fragments, err: tt.err}, nil, zerolog.Nop())
			conv := NewConversation()
			var last []domain.ChatMessage
			_, err := svc.Send(context.Background(), conv, "hello", func(m []domain.ChatMessage) { last = m })
			if !errors.Is(err, tt.err) {
				t.Fatalf("unexpected error %v", err)
			}
			if got := Notice(err); got != tt.notice {
				t.Fatalf("notice %q, want %q", got, tt.notice)
			}
			msgs := conv.Messages()
			if len(msgs) != 1 || msgs[0].Content != Greeting {
				t.Fatalf("ожидали только приветствие, получили %+v", msgs)
			}
			if len(last) != 1 {
				t.Fatalf("last render must show rolled back history, got %+v", last)
			}
			if conv.Loading() {
				t.Fatal("loading must be cleared after failure")
			}
		})
	}
}

func TestSendRejectsEmptyInput(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"x"}}
	svc := NewService(streamer, nil, zerolog.Nop())
	conv := NewConversation()
	if _, err := svc.Send(context.Background(), conv, " \n\t", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if streamer.captured != nil {
		t.Fatal("streamer must not be called")
	}
	if len(conv.Messages()) != 1 {
		t.Fatal("history must be untouched")
	}
}

func TestSendWhileLoadingIsRejected(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"a", "b"}}
	svc := NewService(streamer, nil, zerolog.Nop())
	conv := NewConversation()
	var nested error
	streamer.during = func() {
		if nested == nil {
			_, nested = svc.Send(context.Background(), conv, "again", nil)
		}
	}
	if _, err := svc.Send(context.Background(), conv, "first", nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !errors.Is(nested, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", nested)
	}
	if len(conv.Messages()) != 3 {
		t.Fatalf("unexpected history %+v", conv.Messages())
	}
}

func TestSendWithoutFragmentsKeepsUserMessage(t *testing.T) {
	svc := NewService(&fakeStreamer{}, nil, zerolog.Nop())
	conv := NewConversation()
	if _, err := svc.Send(context.Background(), conv, "hi", nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 2 || msgs[1].Role != domain.ChatRoleUser {
		t.Fatalf("unexpected history %+v", msgs)
	}
}

func TestNoticeNil(t *testing.T) {
	if Notice(nil) != "" {
		t.Fatal("nil error must give empty notice")
	}
}

func TestStorePersistsSnapshots(t *testing.T) {
	mem := cache.NewMemory()
	store := NewStore(mem, time.Hour, zerolog.Nop())
	svc := NewService(&fakeStreamer{fragments: []string{"ok"}}, nil, zerolog.Nop())

	conv := store.Get("tg:1")
	if _, err := svc.Send(context.Background(), conv, "hi", nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	store.Save("tg:1", conv)

	restored := NewStore(mem, time.Hour, zerolog.Nop()).Get("tg:1")
	if got := restored.Messages(); len(got) != 3 || got[2].Content != "ok" {
		t.Fatalf("unexpected restored history %+v", got)
	}

	fresh := store.Reset("tg:1")
	if len(fresh.Messages()) != 1 || store.Get("tg:1") != fresh {
		t.Fatal("reset must start a new conversation")
	}
}

func TestStoreCorruptSnapshot(t *testing.T) {
	mem := cache.NewMemory()
	_ = mem.Set(conversationKeyPrefix+"k", []byte("{broken"), time.Hour)
	conv := NewStore(mem, time.Hour, zerolog.Nop()).Get("k")
	if len(conv.Messages()) != 1 {
		t.Fatal("corrupt snapshot must yield a fresh conversation")
	}
}

// clockCache хранит значения с TTL по общим с тестом часам.
type clockCache struct {
	now   func() time.Time
	items map[string]clockItem
}

type clockItem struct {
	value     []byte
	expiresAt time.Time
}

func (c *clockCache) Once(key string, ttl time.Duration, fn func() error) error {
	return fn()
}

func (c *clockCache) Set(key string, value []byte, ttl time.Duration) error {
	c.items[key] = clockItem{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *clockCache) Get(key string) ([]byte, error) {
	item, ok := c.items[key]
	if !ok || !c.now().Before(item.expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	return item.value, nil
}

func TestStoreExpiresIdleConversations(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mem := &clockCache{now: clock, items: make(map[string]clockItem)}
	store := NewStore(mem, time.Hour, zerolog.Nop())
	store.now = clock
	svc := NewService(&fakeStreamer{fragments: []string{"ok"}}, nil, zerolog.Nop())

	conv := store.Get("tg:1")
	if _, err := svc.Send(context.Background(), conv, "hi", nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	store.Save("tg:1", conv)

	now = now.Add(30 * time.Minute)
	if got := store.Get("tg:1"); got != conv {
		t.Fatal("диалог внутри ttl должен возвращаться из памяти")
	}

	now = now.Add(time.Hour + time.Minute)
	got := store.Get("tg:1")
	if got == conv || len(got.Messages()) != 1 {
		t.Fatalf("expected fresh conversation after ttl, got %d messages", len(got.Messages()))
	}
}

func TestStoreSweepsIdleEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(nil, time.Minute, zerolog.Nop())
	store.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		store.Get(fmt.Sprintf("tg:%d", i))
	}
	busy := store.Get("tg:busy")
	if _, err := busy.begin("long question"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	now = now.Add(2 * time.Minute)
	store.Get("tg:new")
	if len(store.convs) != 2 {
		t.Fatalf("ожидали 2 диалога в памяти, осталось %d", len(store.convs))
	}
	if store.Get("tg:busy") != busy {
		t.Fatal("generating conversation must not be evicted")
	}
}
