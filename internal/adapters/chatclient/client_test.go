package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"health-assistant/internal/domain"
	openai "health-assistant/internal/infra/openai"
)

func TestStreamChat(t *testing.T) {
	var body chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pk-test" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Stay ", "active"} {
			payload, _ := json.Marshal(openai.NewDeltaChunk(part))
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := New(srv.URL+"/functions/v1/health-chat", "pk-test", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var updates []string
	text, err := client.StreamChat(context.Background(), []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "tips?"}}, func(acc string) {
		updates = append(updates, acc)
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "Stay active" || len(updates) != 2 {
		t.Fatalf("got %q, updates %q", text, updates)
	}
	if len(body.Messages) != 1 || body.Messages[0].Content != "tips?" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestStreamChatStatusMapping(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusTooManyRequests: domain.ErrRateLimited,
		http.StatusPaymentRequired: domain.ErrUsageLimit,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"limited"}`))
		}))
		client, _ := New(srv.URL, "")
		_, err := client.StreamChat(context.Background(), []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "hi"}}, nil)
		srv.Close()
		if !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestStreamChatClipsHistory(t *testing.T) {
	var body chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	history := make([]domain.ChatMessage, 0, 9)
	for i := 0; i < 4; i++ {
		history = append(history,
			domain.ChatMessage{Role: domain.ChatRoleUser, Content: fmt.Sprintf("q%d", i)},
			domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	history = append(history, domain.ChatMessage{Role: domain.ChatRoleUser, Content: strings.Repeat("ж", maxMessageRunes+5)})

	client, _ := New(srv.URL, "", WithHistoryLimit(3))
	if _, err := client.StreamChat(context.Background(), history, nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(body.Messages) != 3 || body.Messages[0].Content != "q3" {
		t.Fatalf("ожидали последние 3 сообщения, получили %+v", body.Messages)
	}
	if n := len([]rune(body.Messages[2].Content)); n != maxMessageRunes {
		t.Fatalf("last message must be clipped to %d runes, got %d", maxMessageRunes, n)
	}
	if len(history[8].Content) == 0 || len([]rune(history[8].Content)) != maxMessageRunes+5 {
		t.Fatal("caller history must stay untouched")
	}
}

func TestHistoryLimitBounds(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: defaultHistoryLimit},
		{limit: -1, want: defaultHistoryLimit},
		{limit: 10, want: 10},
		{limit: 500, want: maxHistoryLimit},
	}
	for _, tt := range tests {
		client, _ := New("http://chat.local", "", WithHistoryLimit(tt.limit))
		if client.historyLimit != tt.want {
			t.Fatalf("limit %d: got %d, want %d", tt.limit, client.historyLimit, tt.want)
		}
	}
}

func TestStreamChatGenericStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"at most 50 messages are allowed"}`))
	}))
	defer srv.Close()
	client, _ := New(srv.URL, "")
	_, err := client.StreamChat(context.Background(), []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "hi"}}, nil)
	if err == nil || err.Error() != "chatclient: at most 50 messages are allowed" {
		t.Fatalf("unexpected error %v", err)
	}
}
