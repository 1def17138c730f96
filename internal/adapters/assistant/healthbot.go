package assistant

import (
	"context"
	"fmt"
	"strings"

	"health-assistant/internal/domain"
	openai "health-assistant/internal/infra/openai"
)

// SystemPrompt задаёт поведение ассистента.
const SystemPrompt = `You are HealthBot, a friendly medical AI assistant.
Answer general health questions clearly and concisely, give practical wellness tips and explain when a symptom needs professional care.
You are not a doctor: do not diagnose, do not prescribe medication doses, and recommend consulting a healthcare professional for personal medical decisions.
If the user describes an emergency (chest pain, difficulty breathing, severe bleeding, suicidal thoughts, poisoning), tell them to call 911 or their local emergency number immediately.`

const maxMessageRunes = 4000

type streamClient interface {
	StreamChatCompletion(ctx context.Context, req openai.ChatCompletionRequest, onUpdate func(string)) (string, error)
}

// HealthBot реализует domain.ChatStreamer поверх OpenAI-совместимого API.
type HealthBot struct {
	client       streamClient
	model        string
	historyLimit int
}

var _ domain.ChatStreamer = (*HealthBot)(nil)

// NewHealthBot создаёт ассистента. historyLimit <= 0 отключает обрезку истории.
func NewHealthBot(client streamClient, model string, historyLimit int) *HealthBot {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &HealthBot{client: client, model: model, historyLimit: historyLimit}
}

// StreamChat отправляет историю с системной инструкцией и стримит ответ.
func (h *HealthBot) StreamChat(ctx context.Context, messages []domain.ChatMessage, onUpdate func(string)) (string, error) {
	history, err := h.prepare(messages)
	if err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model:       h.model,
		Temperature: 0.4,
		MaxTokens:   800,
		Messages:    history,
	}
	text, err := h.client.StreamChatCompletion(ctx, req, onUpdate)
	if err != nil {
		return text, fmt.Errorf("healthbot: %w", err)
	}
	return text, nil
}

func (h *HealthBot) prepare(messages []domain.ChatMessage) ([]openai.ChatMessage, error) {
	filtered := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != domain.ChatRoleUser && m.Role != domain.ChatRoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		filtered = append(filtered, m)
	}
	if h.historyLimit > 0 && len(filtered) > h.historyLimit {
		filtered = filtered[len(filtered)-h.historyLimit:]
	}
	if len(filtered) == 0 || filtered[len(filtered)-1].Role != domain.ChatRoleUser {
		return nil, domain.ErrInvalidMessages
	}
	out := make([]openai.ChatMessage, 0, len(filtered)+1)
	out = append(out, openai.ChatMessage{Role: openai.RoleSystem, Content: SystemPrompt})
	for _, m := range filtered {
		out = append(out, openai.ChatMessage{Role: string(m.Role), Content: clipRunes(m.Content, maxMessageRunes)})
	}
	return out, nil
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
