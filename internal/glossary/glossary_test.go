package glossary_test

import (
	"testing"

	"github.com/MrWong99/lingualink/internal/glossary"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()
	c := glossary.New([]string{"Katarina", "Anna Schmidt"})

	tests := []struct {
		name  string
		in    string
		want  string
		fixes int
	}{
		{"single word", "hello catarina", "hello Katarina", 1},
		{"keeps punctuation", "Thanks, catarina!", "Thanks, Katarina!", 1},
		{"multi word term", "ask anna schmitt about it", "ask Anna Schmidt about it", 1},
		{"already correct", "hi Katarina", "hi Katarina", 0},
		{"unrelated text", "the weather is nice", "the weather is nice", 0},
		{"empty", "", "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, fixes := c.Correct(tc.in)
			if got != tc.want {
				t.Errorf("Correct(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if len(fixes) != tc.fixes {
				t.Errorf("corrections = %+v, want %d", fixes, tc.fixes)
			}
		})
	}
}

func TestCorrector_Match(t *testing.T) {
	t.Parallel()
	c := glossary.New([]string{"Katarina"})

	got, score, ok := c.Match("catarina")
	if !ok || got != "Katarina" {
		t.Fatalf("Match = %q, %v, want Katarina", got, ok)
	}
	if score < glossary.DefaultPhoneticThreshold || score > 1 {
		t.Errorf("score = %v", score)
	}

	if got, _, ok := c.Match("weather"); ok || got != "weather" {
		t.Errorf("Match(weather) = %q, %v, want unmatched", got, ok)
	}
}

func TestNew_IgnoresBlankTerms(t *testing.T) {
	t.Parallel()
	c := glossary.New([]string{"", "   ", "Bob"})
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if got := glossary.New(nil).CorrectText("bob"); got != "bob" {
		t.Errorf("empty glossary changed text to %q", got)
	}
}

func TestCorrector_Thresholds(t *testing.T) {
	t.Parallel()
	strict := glossary.New([]string{"Katarina"},
		glossary.WithPhoneticThreshold(0.99),
		glossary.WithFuzzyThreshold(0.99),
	)
	if got, _, ok := strict.Match("catarina"); ok {
		t.Errorf("strict Match = %q, want unmatched", got)
	}
}
