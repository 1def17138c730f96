package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"health-assistant/internal/domain"
	openai "health-assistant/internal/infra/openai"
	"health-assistant/internal/usecase/chat"
)

const (
	maxChatMessages     = 50
	maxChatMessageRunes = 4000
)

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

var (
	errNoMessages       = errors.New("messages are required")
	errTooManyMessages  = fmt.Errorf("at most %d messages are allowed", maxChatMessages)
	errInvalidRole      = errors.New("message role must be user or assistant")
	errMessageTooLong   = fmt.Errorf("message must be at most %d characters", maxChatMessageRunes)
	errLastMessageEmpty = errors.New("messages must end with a non-empty user message")
)

// validateMessages проверяет историю, присланную клиентом. Текст ошибки уходит клиенту.
func validateMessages(messages []domain.ChatMessage) error {
	switch {
	case len(messages) == 0:
		return errNoMessages
	case len(messages) > maxChatMessages:
		return errTooManyMessages
	}
	for _, m := range messages {
		if m.Role != domain.ChatRoleUser && m.Role != domain.ChatRoleAssistant {
			return errInvalidRole
		}
		if utf8.RuneCountInString(m.Content) > maxChatMessageRunes {
			return errMessageTooLong
		}
	}
	last := messages[len(messages)-1]
	if last.Role != domain.ChatRoleUser || strings.TrimSpace(last.Content) == "" {
		return errLastMessageEmpty
	}
	return nil
}

// handleChat ретранслирует ответ ассистента потоком text/event-stream в формате дельт.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	sent := 0
	var writeErr error
	_, err := h.streamer.StreamChat(r.Context(), req.Messages, func(accumulated string) {
		if writeErr != nil {
			return
		}
		if !started {
			started = true
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}
		delta := accumulated[sent:]
		sent = len(accumulated)
		if writeErr = writeDelta(w, delta); writeErr == nil && flusher != nil {
			flusher.Flush()
		}
	})

	if err != nil {
		if !started {
			status, code := chatErrorStatus(err)
			h.log.Warn().Err(err).Int("status", status).Msg("chat: ошибка до начала потока")
			writeError(w, status, code, chat.Notice(err))
			return
		}
		h.log.Error().Err(err).Int("sent_bytes", sent).Msg("chat: поток прерван")
		// Частичный ответ не завершается [DONE], соединение обрывается.
		panic(http.ErrAbortHandler)
	}
	if writeErr != nil {
		h.log.Warn().Err(writeErr).Msg("chat: клиент отключился")
		return
	}
	if !started {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeDelta(w http.ResponseWriter, delta string) error {
	payload, err := json.Marshal(openai.NewDeltaChunk(delta))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, domain.ErrUsageLimit):
		return http.StatusPaymentRequired, codeUsageLimit
	case errors.Is(err, domain.ErrInvalidMessages):
		return http.StatusBadRequest, codeInvalidRequest
	default:
		return http.StatusBadGateway, codeUpstream
	}
}
