package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client выполняет потоковые Chat Completions запросы.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента OpenAI-совместимого API.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// ChatCompletionRequest описывает тело запроса.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatMessage представляет сообщение в диалоге.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
	// RoleAssistant ответ модели.
	RoleAssistant = "assistant"
)

// StreamChatCompletion вызывает /chat/completions со stream=true и разбирает поток дельт.
// 429 и 402 превращаются в domain.ErrRateLimited и domain.ErrUsageLimit.
func (c *Client) StreamChatCompletion(ctx context.Context, req ChatCompletionRequest, onUpdate func(accumulated string)) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: api key is empty")
	}
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("openai", "chat_completions_stream", req.Model, start, err)
		return "", fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := StatusError("openai", resp.StatusCode, respBody)
		metrics.ObserveNetworkRequest("openai", "chat_completions_stream", req.Model, start, err)
		return "", err
	}

	text, err := ConsumeStream(ctx, resp.Body, onUpdate)
	metrics.ObserveNetworkRequest("openai", "chat_completions_stream", req.Model, start, err)
	if err != nil {
		return text, fmt.Errorf("openai: read stream: %w", err)
	}
	metrics.ObserveLLMGeneration(req.Model, time.Since(start))
	return text, nil
}

// StatusError переводит неуспешный ответ в ошибку с префиксом component.
func StatusError(component string, status int, body []byte) error {
	message := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message = apiErr.message()
	}
	switch status {
	case http.StatusTooManyRequests:
		if message != "" {
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, message)
		}
		return domain.ErrRateLimited
	case http.StatusPaymentRequired:
		if message != "" {
			return fmt.Errorf("%w: %s", domain.ErrUsageLimit, message)
		}
		return domain.ErrUsageLimit
	}
	if message != "" {
		return fmt.Errorf("%s: %s", component, message)
	}
	return fmt.Errorf("%s: unexpected status %d", component, status)
}

// apiErrorResponse покрывает и формат OpenAI {"error":{"message":..}}, и плоский {"error":"..."}.
type apiErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

func (r apiErrorResponse) message() string {
	if len(r.Error) == 0 {
		return ""
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	var flat string
	if err := json.Unmarshal(r.Error, &flat); err == nil {
		return flat
	}
	return ""
}
