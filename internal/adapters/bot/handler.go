package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"health-assistant/internal/adapters/telegram"
	"health-assistant/internal/domain"
	"health-assistant/internal/infra/metrics"
	"health-assistant/internal/usecase/chat"
	"health-assistant/internal/usecase/doctors"
	"health-assistant/internal/usecase/feedback"
)

const (
	placeholderText = "…"
	maxDoctorsShown = 10
)

// API часть tgbotapi.BotAPI, которой пользуется обработчик.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot          API
	log          zerolog.Logger
	chatUC       *chat.Service
	store        *chat.Store
	doctorsUC    *doctors.Service
	feedbackUC   *feedback.Service
	editInterval time.Duration
	now          func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(bot API, log zerolog.Logger, chatUC *chat.Service, store *chat.Store, doctorsUC *doctors.Service, feedbackUC *feedback.Service, editInterval time.Duration) *Handler {
	return &Handler{
		bot:          bot,
		log:          log,
		chatUC:       chatUC,
		store:        store,
		doctorsUC:    doctorsUC,
		feedbackUC:   feedbackUC,
		editInterval: editInterval,
		now:          time.Now,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID
	if !strings.HasPrefix(text, "/") {
		h.handleChat(ctx, chatID, text)
		return
	}
	command, payload := splitCommand(text)
	switch command {
	case "/start":
		h.reply(chatID, buildStartMessage(), mainKeyboard())
	case "/help":
		h.reply(chatID, buildHelpMessage(), mainKeyboard())
	case "/doctors":
		h.handleDoctors(ctx, chatID, doctors.Query{Term: payload})
	case "/specialty":
		if payload == "" {
			h.handleSpecialtyMenu(ctx, chatID)
			return
		}
		h.handleDoctors(ctx, chatID, doctors.Query{Specialty: payload})
	case "/emergency":
		h.reply(chatID, buildEmergencyMessage(), nil)
	case "/feedback":
		h.handleFeedback(ctx, chatID, payload)
	case "/reset":
		h.store.Reset(chatKey(chatID))
		h.reply(chatID, chat.Greeting, nil)
	default:
		h.reply(chatID, "Unknown command. Use /help", nil)
	}
}

// splitCommand отделяет команду от аргументов и убирает суффикс @botname.
func splitCommand(text string) (string, string) {
	command, payload, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(payload)
}

func chatKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	switch {
	case data == "tab:chat":
		h.reply(chatID, "Ask me anything about your health. Just type your question.", nil)
	case data == "tab:doctors":
		h.handleDoctors(ctx, chatID, doctors.Query{})
	case data == "tab:specialties":
		h.handleSpecialtyMenu(ctx, chatID)
	case data == "tab:emergency":
		h.reply(chatID, buildEmergencyMessage(), nil)
	case data == "tab:feedback":
		h.reply(chatID, "Rate us from 1 to 5 and leave a message:\n/feedback 5 Very helpful!", nil)
	case strings.HasPrefix(data, "specialty:"):
		h.handleDoctors(ctx, chatID, doctors.Query{Specialty: strings.TrimPrefix(data, "specialty:")})
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleChat(ctx context.Context, chatID int64, text string) {
	key := chatKey(chatID)
	conv := h.store.Get(key)
	if conv.Loading() {
		h.reply(chatID, "Please wait until I finish the previous answer.", nil)
		return
	}
	h.typing(chatID)
	placeholder, err := h.send(tgbotapi.NewMessage(chatID, placeholderText))
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("bot: не удалось отправить заглушку")
		return
	}
	editor := newStreamEditor(h, chatID, placeholder.MessageID)
	replyLen := len(conv.Messages()) + 2
	answer, err := h.chatUC.Send(ctx, conv, text, func(messages []domain.ChatMessage) {
		if len(messages) == replyLen {
			editor.update(messages[len(messages)-1].Content)
		}
	})
	if err != nil {
		editor.discard()
		if errors.Is(err, chat.ErrBusy) {
			h.reply(chatID, "Please wait until I finish the previous answer.", nil)
			return
		}
		h.reply(chatID, chat.Notice(err), nil)
		return
	}
	h.store.Save(key, conv)
	editor.finish(answer)
}

func (h *Handler) handleDoctors(ctx context.Context, chatID int64, q doctors.Query) {
	res, err := h.doctorsUC.Search(ctx, q)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: поиск врачей")
		h.reply(chatID, "Failed to load doctors. Please try again.", nil)
		return
	}
	h.reply(chatID, formatDoctors(res.Doctors, q), specialtyKeyboard(res.Specialties))
}

func (h *Handler) handleSpecialtyMenu(ctx context.Context, chatID int64) {
	res, err := h.doctorsUC.Search(ctx, doctors.Query{})
	if err != nil {
		h.log.Error().Err(err).Msg("bot: список специальностей")
		h.reply(chatID, "Failed to load doctors. Please try again.", nil)
		return
	}
	h.reply(chatID, "Choose a specialty:", specialtyKeyboard(res.Specialties))
}

func (h *Handler) handleFeedback(ctx context.Context, chatID int64, payload string) {
	if payload == "" {
		h.reply(chatID, "Usage: /feedback <rating 1-5> <message>\nExample: /feedback 5 Very helpful!", nil)
		return
	}
	rating, message := ParseFeedback(payload)
	_, err := h.feedbackUC.Submit(ctx, feedback.Input{
		Message: message,
		Rating:  rating,
		Source:  domain.FeedbackSourceTelegram,
	})
	if err != nil {
		if feedback.IsValidation(err) {
			h.reply(chatID, err.Error(), nil)
			return
		}
		h.log.Error().Err(err).Msg("bot: сохранение отзыва")
		h.reply(chatID, feedback.FailureText, nil)
		return
	}
	h.reply(chatID, feedback.SuccessText, nil)
}

// ParseFeedback разбирает аргументы /feedback: первое слово рейтинг, остальное текст.
// Если рейтинг не указан, возвращается 0 и весь текст.
func ParseFeedback(payload string) (int, string) {
	payload = strings.TrimSpace(payload)
	head, rest, _ := strings.Cut(payload, " ")
	head = strings.TrimSuffix(strings.TrimSuffix(head, "/5"), "⭐")
	rating, err := strconv.Atoi(head)
	if err != nil {
		return 0, payload
	}
	return rating, strings.TrimSpace(rest)
}

func (h *Handler) typing(chatID int64) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	metrics.ObserveNetworkRequest("telegram_bot", "chat_action", strconv.FormatInt(chatID, 10), start, err)
}

func (h *Handler) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	start := time.Now()
	msg, err := h.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", "", start, err)
	return msg, err
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 AI Chat", "tab:chat"),
			tgbotapi.NewInlineKeyboardButtonData("🩺 Find Doctors", "tab:doctors"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚨 Emergency", "tab:emergency"),
			tgbotapi.NewInlineKeyboardButtonData("⭐ Feedback", "tab:feedback"),
		),
	)
	return &buttons
}

func specialtyKeyboard(specialties []string) *tgbotapi.InlineKeyboardMarkup {
	if len(specialties) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range specialties {
		label := s
		if s == domain.SpecialtyAll {
			label = "All Specialties"
		}
		// callback_data ограничен 64 байтами.
		data := "specialty:" + s
		if len(data) > 64 {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func formatDoctors(list []domain.Doctor, q doctors.Query) string {
	if len(list) == 0 {
		return "No doctors found matching your criteria."
	}
	var b strings.Builder
	title := "Available doctors"
	if q.Specialty != "" && q.Specialty != domain.SpecialtyAll {
		title += " · " + q.Specialty
	}
	if q.Term != "" {
		title += fmt.Sprintf(" · \"%s\"", q.Term)
	}
	fmt.Fprintf(&b, "%s (%d):\n", title, len(list))
	for i, d := range list {
		if i == maxDoctorsShown {
			fmt.Fprintf(&b, "\n…and %d more. Narrow the search with /doctors <term>.", len(list)-maxDoctorsShown)
			break
		}
		fmt.Fprintf(&b, "\n%s\n%s · ⭐ %.1f · %d years\n📍 %s\n", d.Name, d.Specialty, d.Rating, d.ExperienceYears, d.Location)
		if d.Phone != "" {
			fmt.Fprintf(&b, "📞 %s\n", d.Phone)
		}
		if d.Email != "" {
			fmt.Fprintf(&b, "✉️ %s\n", d.Email)
		}
	}
	return b.String()
}

func buildEmergencyMessage() string {
	lines := []string{"🚨 Emergency Contacts", ""}
	for _, c := range domain.EmergencyContacts() {
		lines = append(lines, fmt.Sprintf("• %s: %s", c.Name, c.Number))
	}
	lines = append(lines, "", domain.EmergencyNotice+".", "", domain.EmergencyDisclaimer)
	return strings.Join(lines, "\n")
}

func buildStartMessage() string {
	return chat.Greeting + "\n\nUse the menu below or just type your question."
}

func buildHelpMessage() string {
	sections := []string{
		"📖 Commands:",
		"",
		"• Any text: ask HealthBot a question.",
		"• /doctors cardio: search doctors by name, specialty or location.",
		"• /specialty Cardiology: doctors of one specialty.",
		"• /emergency: emergency phone numbers.",
		"• /feedback 5 Great app!: rate the service.",
		"• /reset: start a new conversation.",
		"",
		"HealthBot does not replace a doctor. In an emergency call 911.",
	}
	return strings.Join(sections, "\n")
}
