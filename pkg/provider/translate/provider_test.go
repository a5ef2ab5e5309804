package translate

import (
	"strings"
	"testing"
)

func TestPrompt(t *testing.T) {
	t.Parallel()

	got := Prompt(Request{Text: "Hello world", SourceLang: "en", TargetLang: "es"})
	for _, want := range []string{"from en to es", "Return ONLY the translated text", "\"Hello world\""} {
		if !strings.Contains(got, want) {
			t.Errorf("Prompt() = %q, missing %q", got, want)
		}
	}

	if got := Prompt(Request{Text: "x", TargetLang: "de"}); !strings.Contains(got, "from auto to de") {
		t.Errorf("Prompt() without source = %q, want auto-detect", got)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Hola mundo", "Hola mundo"},
		{"  \"Hola mundo\"\n", "Hola mundo"},
		{"\"Hola\" dijo", "Hola\" dijo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
