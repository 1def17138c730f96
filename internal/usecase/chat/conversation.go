package chat

import (
	"sync"

	"health-assistant/internal/domain"
)

// Greeting первое сообщение ассистента в каждом новом диалоге.
const Greeting = "Hello! I'm HealthBot, your medical AI assistant. How can I help you today? I can answer health questions, provide wellness tips, and guide you on when to seek medical care."

// Conversation хранит историю диалога и флаг незавершённого ответа.
type Conversation struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	loading  bool

	// turnStart индекс сообщения пользователя текущего хода.
	turnStart int
	replied   bool
}

// NewConversation создаёт диалог с приветствием.
func NewConversation() *Conversation {
	return &Conversation{messages: []domain.ChatMessage{{Role: domain.ChatRoleAssistant, Content: Greeting}}}
}

// RestoreConversation восстанавливает диалог из снимка. Пустой снимок даёт новый диалог.
func RestoreConversation(messages []domain.ChatMessage) *Conversation {
	if len(messages) == 0 {
		return NewConversation()
	}
	cp := make([]domain.ChatMessage, len(messages))
	copy(cp, messages)
	return &Conversation{messages: cp}
}

// Messages возвращает копию истории.
func (c *Conversation) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Loading сообщает, ждёт ли диалог ответа.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Conversation) snapshot() []domain.ChatMessage {
	cp := make([]domain.ChatMessage, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// begin добавляет сообщение пользователя и выставляет loading.
func (c *Conversation) begin(content string) ([]domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return nil, ErrBusy
	}
	c.loading = true
	c.turnStart = len(c.messages)
	c.replied = false
	c.messages = append(c.messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: content})
	return c.snapshot(), nil
}

// reply записывает накопленный текст в сообщение ассистента текущего хода.
func (c *Conversation) reply(text string) []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.replied {
		c.messages = append(c.messages, domain.ChatMessage{Role: domain.ChatRoleAssistant})
		c.replied = true
	}
	c.messages[len(c.messages)-1].Content = text
	return c.snapshot()
}

// rollback убирает сообщения текущего хода.
func (c *Conversation) rollback() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnStart < len(c.messages) {
		c.messages = c.messages[:c.turnStart]
	}
	c.replied = false
	return c.snapshot()
}

func (c *Conversation) finish() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}
