package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"

	readBufferSize = 4 * 1024
)

// StreamAccumulator разбирает поток строк `data: <json>` в формате дельт Chat Completions
// и накапливает текст ответа. Куски могут резаться в произвольном месте,
// незавершённая строка хранится до прихода следующего куска.
type StreamAccumulator struct {
	pending []byte
	text    strings.Builder
	done    bool
	skipped int
}

// NewStreamAccumulator создаёт пустой аккумулятор.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// Feed добавляет очередной кусок тела ответа и возвращает фрагменты текста
// из строк, которые этот кусок завершил.
func (a *StreamAccumulator) Feed(chunk []byte) []string {
	if a.done {
		return nil
	}
	a.pending = append(a.pending, chunk...)
	var fragments []string
	for !a.done {
		idx := bytes.IndexByte(a.pending, '\n')
		if idx < 0 {
			break
		}
		line := a.pending[:idx]
		if fragment, ok := a.processLine(line); ok {
			fragments = append(fragments, fragment)
		}
		a.pending = a.pending[idx+1:]
	}
	if a.done {
		a.pending = nil
	}
	return fragments
}

// Flush обрабатывает хвост без завершающего перевода строки. Вызывается в конце потока.
func (a *StreamAccumulator) Flush() []string {
	if a.done || len(a.pending) == 0 {
		a.pending = nil
		return nil
	}
	line := a.pending
	a.pending = nil
	if fragment, ok := a.processLine(line); ok {
		return []string{fragment}
	}
	return nil
}

// Text возвращает накопленный текст.
func (a *StreamAccumulator) Text() string {
	return a.text.String()
}

// Done сообщает, встретился ли маркер [DONE].
func (a *StreamAccumulator) Done() bool {
	return a.done
}

// Skipped возвращает количество пропущенных некорректных payload.
func (a *StreamAccumulator) Skipped() int {
	return a.skipped
}

func (a *StreamAccumulator) processLine(raw []byte) (string, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	data := line[len(dataPrefix):]
	if data == doneMarker {
		a.done = true
		return "", false
	}
	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		a.skipped++
		return "", false
	}
	content := chunk.Content()
	if content == "" {
		return "", false
	}
	a.text.WriteString(content)
	return content, true
}

// StreamChunk описывает один payload потокового ответа.
type StreamChunk struct {
	ID      string              `json:"id,omitempty"`
	Model   string              `json:"model,omitempty"`
	Choices []StreamChunkChoice `json:"choices"`
}

// StreamChunkChoice содержит дельту сообщения.
type StreamChunkChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamDelta приращение сообщения ассистента.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Content возвращает фрагмент текста первого варианта, если он есть.
func (c StreamChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// NewDeltaChunk собирает payload с одним фрагментом текста.
func NewDeltaChunk(content string) StreamChunk {
	return StreamChunk{Choices: []StreamChunkChoice{{Delta: StreamDelta{Content: content}}}}
}

// ConsumeStream читает тело ответа до [DONE], EOF, отмены контекста или ошибки чтения.
// onUpdate получает накопленный текст после каждого фрагмента. Возвращает накопленный текст
// даже при ошибке.
func ConsumeStream(ctx context.Context, r io.Reader, onUpdate func(accumulated string)) (string, error) {
	acc := NewStreamAccumulator()
	buf := make([]byte, readBufferSize)
	emit := func(before string, fragments []string) {
		if onUpdate == nil {
			return
		}
		text := before
		for _, fragment := range fragments {
			text += fragment
			onUpdate(text)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return acc.Text(), err
		}
		n, err := r.Read(buf)
		if n > 0 {
			before := acc.Text()
			emit(before, acc.Feed(buf[:n]))
			if acc.Done() {
				return acc.Text(), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				before := acc.Text()
				emit(before, acc.Flush())
				return acc.Text(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return acc.Text(), ctxErr
			}
			return acc.Text(), err
		}
	}
}
