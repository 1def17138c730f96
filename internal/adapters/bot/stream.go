package bot

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"health-assistant/internal/adapters/telegram"
	"health-assistant/internal/infra/metrics"
)

// streamEditor правит сообщение-заглушку по мере накопления ответа не чаще раза в interval.
type streamEditor struct {
	h         *Handler
	chatID    int64
	messageID int
	lastEdit  time.Time
	lastText  string
}

func newStreamEditor(h *Handler, chatID int64, messageID int) *streamEditor {
	return &streamEditor{h: h, chatID: chatID, messageID: messageID}
}

func (e *streamEditor) update(text string) {
	now := e.h.now()
	if !e.lastEdit.IsZero() && now.Sub(e.lastEdit) < e.h.editInterval {
		return
	}
	e.lastEdit = now
	e.edit(telegram.ClipMessage(text))
}

// finish выводит полный ответ: первая часть в заглушку, остальные отдельными сообщениями.
func (e *streamEditor) finish(text string) {
	parts := telegram.SplitMessage(text)
	if len(parts) == 0 {
		parts = []string{"I couldn't generate an answer. Please try rephrasing your question."}
	}
	e.edit(parts[0])
	for _, part := range parts[1:] {
		if _, err := e.h.send(tgbotapi.NewMessage(e.chatID, part)); err != nil {
			e.h.log.Error().Err(err).Msg("bot: не удалось отправить продолжение ответа")
			return
		}
	}
}

// discard удаляет заглушку после неудачной генерации.
func (e *streamEditor) discard() {
	start := time.Now()
	_, err := e.h.bot.Request(tgbotapi.NewDeleteMessage(e.chatID, e.messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(e.chatID, 10), start, err)
	if err != nil {
		e.h.log.Warn().Err(err).Msg("bot: не удалось удалить заглушку")
	}
}

func (e *streamEditor) edit(text string) {
	if text == "" || text == e.lastText {
		return
	}
	start := time.Now()
	_, err := e.h.bot.Send(tgbotapi.NewEditMessageText(e.chatID, e.messageID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(e.chatID, 10), start, err)
	if err != nil {
		e.h.log.Warn().Err(err).Msg("bot: не удалось обновить сообщение")
		return
	}
	e.lastText = text
}
