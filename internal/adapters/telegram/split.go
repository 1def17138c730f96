package telegram

import "strings"

const messageLimit = 4096

// Разделители в порядке предпочтения: абзац, строка, конец предложения, пробел.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

// SplitMessage делит ответ на сообщения не длиннее лимита Telegram.
// Разрез ищется на самой крупной границе во второй половине окна, иначе текст режется по лимиту.
func SplitMessage(text string) []string {
	return splitLimit(strings.TrimSpace(text), messageLimit)
}

func splitLimit(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var parts []string
	for len(runes) > limit {
		cut := cutPoint(runes[:limit])
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func cutPoint(window []rune) int {
	for _, sep := range separators {
		if i := lastIndex(window, sep); i >= len(window)/2 {
			return i + len(sep)
		}
	}
	return len(window)
}

func lastIndex(runes, sep []rune) int {
	for i := len(runes) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// ClipMessage обрезает текст до одного сообщения для промежуточных правок.
// Обрезанный текст заканчивается многоточием.
func ClipMessage(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= messageLimit {
		return string(runes)
	}
	return string(runes[:messageLimit-1]) + "…"
}
