package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"health-assistant/internal/domain"
	"health-assistant/internal/usecase/chat"
)

const (
	frameHistory = "history"
	frameUpdate  = "update"
	frameDone    = "done"
	frameError   = "error"
)

type wsInbound struct {
	Content string `json:"content"`
}

type wsFrame struct {
	Type     string               `json:"type"`
	Content  string               `json:"content,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
	Error    string               `json:"error,omitempty"`
	Code     string               `json:"code,omitempty"`
}

type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func (c *wsConn) send(frame wsFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// handleChatWS ведёт диалог по websocket: у каждого соединения своя история.
func (h *Handler) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}
	c := &wsConn{conn: conn, closed: make(chan struct{})}
	defer c.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conv := chat.NewConversation()
	if err := c.send(wsFrame{Type: frameHistory, Messages: conv.Messages()}); err != nil {
		return
	}

	go h.wsWriteLoop(ctx, c)

	var wg sync.WaitGroup
	defer wg.Wait()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("ws: соединение закрыто")
			}
			cancel()
			return
		}
		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = c.send(wsFrame{Type: frameError, Error: "invalid message", Code: codeInvalidRequest})
			continue
		}
		if conv.Loading() {
			_ = c.send(wsFrame{Type: frameError, Error: chat.ErrBusy.Error(), Code: codeInvalidRequest})
			continue
		}
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			h.wsAnswer(ctx, c, conv, content)
		}(in.Content)
	}
}

func (h *Handler) wsAnswer(ctx context.Context, c *wsConn, conv *chat.Conversation, content string) {
	// Ответ ассистента этого хода идёт вторым после сообщения пользователя.
	replyLen := len(conv.Messages()) + 2
	text, err := h.chat.Send(ctx, conv, content, func(messages []domain.ChatMessage) {
		if len(messages) != replyLen {
			return
		}
		_ = c.send(wsFrame{Type: frameUpdate, Content: messages[len(messages)-1].Content})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		code := codeInvalidRequest
		msg := err.Error()
		if !errors.Is(err, chat.ErrEmptyInput) && !errors.Is(err, chat.ErrBusy) {
			_, code = chatErrorStatus(err)
			msg = chat.Notice(err)
		}
		_ = c.send(wsFrame{Type: frameError, Error: msg, Code: code, Messages: conv.Messages()})
		return
	}
	_ = c.send(wsFrame{Type: frameDone, Content: text, Messages: conv.Messages()})
}

func (h *Handler) wsWriteLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.close()
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}
