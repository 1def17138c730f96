package domain

// ChatRole описывает автора сообщения в диалоге.
type ChatRole string

const (
	// ChatRoleSystem системная инструкция модели, клиенты её не присылают.
	ChatRoleSystem ChatRole = "system"
	// ChatRoleUser сообщение пользователя.
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant ответ ассистента.
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage представляет сообщение в диалоге с ассистентом.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Doctor описывает запись справочника врачей.
type Doctor struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Specialty       string  `json:"specialty"`
	Location        string  `json:"location"`
	Phone           string  `json:"phone"`
	Email           string  `json:"email"`
	Rating          float64 `json:"rating"`
	ExperienceYears int     `json:"experience_years"`
	Available       bool    `json:"available"`
}

// SpecialtyAll отключает фильтр по специальности.
const SpecialtyAll = "all"
