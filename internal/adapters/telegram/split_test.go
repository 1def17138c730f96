package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessagePrefersParagraphs(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatal("первая часть должна заканчиваться на границе абзаца")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("unexpected second part %q…", parts[1][:10])
	}
}

func TestSplitLimitBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "short", text: "hello world", limit: 20, want: []string{"hello world"}},
		{name: "empty", text: "", limit: 20, want: nil},
		{name: "sentence", text: "Drink water. Sleep well", limit: 13, want: []string{"Drink water.", "Sleep well"}},
		{name: "space", text: "aaaa bbbbbbbb", limit: 8, want: []string{"aaaa", "bbbbbbbb"}},
		{name: "hard cut", text: "abcdefghij", limit: 6, want: []string{"abcdef", "ghij"}},
		{name: "runes", text: "жжжжжжжж", limit: 6, want: []string{"жжжжжж", "жж"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLimit(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("part %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("word ", 3000)
	for i, part := range SplitMessage(text) {
		if n := len([]rune(part)); n > messageLimit {
			t.Fatalf("part %d exceeds limit: %d", i, n)
		}
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("expected no parts for empty input, got %d", len(parts))
	}
}

func TestClipMessage(t *testing.T) {
	if got := ClipMessage("  short  "); got != "short" {
		t.Fatalf("unexpected clip %q", got)
	}
	long := strings.Repeat("ж", messageLimit+10)
	clipped := ClipMessage(long)
	if n := len([]rune(clipped)); n != messageLimit {
		t.Fatalf("expected %d runes, got %d", messageLimit, n)
	}
	if !strings.HasSuffix(clipped, "…") {
		t.Fatal("clipped text must end with ellipsis")
	}
}
