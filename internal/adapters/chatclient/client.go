package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
	openai "health-assistant/internal/infra/openai"
)

const (
	defaultHistoryLimit = 20
	// Ограничения /api/v1/chat на число и длину сообщений.
	maxHistoryLimit = 50
	maxMessageRunes = 4000
)

// Client обращается к потоковому эндпоинту чата (POST {messages} -> text/event-stream).
// Отправляются только последние historyLimit сообщений диалога.
type Client struct {
	endpoint     *url.URL
	apiKey       string
	httpClient   *http.Client
	historyLimit int
}

var _ domain.ChatStreamer = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithHistoryLimit задаёт, сколько последних сообщений уходит в запрос.
func WithHistoryLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.historyLimit = min(limit, maxHistoryLimit)
		}
	}
}

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// New создаёт клиента. apiKey передаётся как Bearer токен, если задан.
func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		endpoint:     parsed,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// StreamChat отправляет историю и разбирает потоковый ответ.
func (c *Client) StreamChat(ctx context.Context, messages []domain.ChatMessage, onUpdate func(string)) (string, error) {
	body, err := json.Marshal(chatRequest{Messages: c.clipHistory(messages)})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("chatclient", "stream", c.endpoint.Host, start, err)
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := openai.StatusError("chatclient", resp.StatusCode, data)
		metrics.ObserveNetworkRequest("chatclient", "stream", c.endpoint.Host, start, err)
		return "", err
	}

	text, err := openai.ConsumeStream(ctx, resp.Body, onUpdate)
	metrics.ObserveNetworkRequest("chatclient", "stream", c.endpoint.Host, start, err)
	if err != nil {
		return text, fmt.Errorf("read chat stream: %w", err)
	}
	return text, nil
}

func (c *Client) clipHistory(messages []domain.ChatMessage) []domain.ChatMessage {
	if len(messages) > c.historyLimit {
		messages = messages[len(messages)-c.historyLimit:]
	}
	out := make([]domain.ChatMessage, len(messages))
	for i, m := range messages {
		if runes := []rune(m.Content); len(runes) > maxMessageRunes {
			m.Content = string(runes[:maxMessageRunes])
		}
		out[i] = m
	}
	return out
}
