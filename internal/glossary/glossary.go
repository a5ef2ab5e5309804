// Package glossary corrects recognizer output against a list of known terms
// such as participant names or product vocabulary.
//
// A word window is compared with every term of the same word count. When each
// word shares a Double Metaphone code with the word at the same position of a
// term, the term is a phonetic candidate and the candidate with the best
// Jaro-Winkler score above the phonetic threshold wins. Without a phonetic
// candidate, plain Jaro-Winkler similarity must reach the stricter fuzzy
// threshold.
package glossary

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched term.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that does
// not sound like the input.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Correction records a single replacement made by [Corrector.Correct].
type Correction struct {
	Original  string
	Corrected string
	Score     float64
}

type term struct {
	text  string
	lower string
	codes []map[string]struct{}
}

// Corrector replaces misrecognised spans of a transcript with glossary terms.
// It is read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New precomputes phonetic codes for terms. Blank terms are ignored.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, t := range terms {
		tokens := strings.Fields(strings.ToLower(t))
		if len(tokens) == 0 {
			continue
		}
		c.terms = append(c.terms, term{
			text:  strings.Join(strings.Fields(t), " "),
			lower: strings.Join(tokens, " "),
			codes: codes(tokens),
		})
		c.maxWords = max(c.maxWords, len(tokens))
	}
	return c
}

// Len returns the number of usable terms.
func (c *Corrector) Len() int { return len(c.terms) }

// Match returns the glossary term closest to phrase. When matched is false
// the returned term is phrase unchanged.
func (c *Corrector) Match(phrase string) (corrected string, score float64, matched bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 {
		return phrase, 0, false
	}
	lower := strings.Join(tokens, " ")
	in := codes(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range c.terms {
		t := &c.terms[i]
		if len(t.codes) != len(tokens) {
			continue
		}
		s := matchr.JaroWinkler(lower, t.lower, false)
		if soundsAlike(in, t.codes) {
			if s >= c.phoneticThreshold && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = t, s, true
			}
			continue
		}
		if !bestPhonetic && s >= c.fuzzyThreshold && s > bestScore {
			best, bestScore = t, s
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// Correct scans text left to right and replaces the longest word window that
// matches a term. Punctuation around a window is preserved. Windows already
// equal to a term (ignoring case) produce no correction.
func (c *Corrector) Correct(text string) (string, []Correction) {
	words := strings.Fields(text)
	if len(words) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(words); {
		consumed := 1
		out = append(out, words[i])
		for n := min(c.maxWords, len(words)-i); n >= 1; n-- {
			window := strings.Join(words[i:i+n], " ")
			bare := strings.TrimFunc(window, isPunct)
			got, score, ok := c.Match(bare)
			if !ok {
				continue
			}
			if !strings.EqualFold(bare, got) {
				corrections = append(corrections, Correction{Original: bare, Corrected: got, Score: score})
				window = strings.Replace(window, bare, got, 1)
			}
			out[len(out)-1] = window
			consumed = n
			break
		}
		i += consumed
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// CorrectText is [Corrector.Correct] without the correction list.
func (c *Corrector) CorrectText(text string) string {
	s, _ := c.Correct(text)
	return s
}

func isPunct(r rune) bool {
	return strings.ContainsRune(`.,;:!?"'()`, r)
}

// codes returns the Double Metaphone codes of each token.
func codes(tokens []string) []map[string]struct{} {
	out := make([]map[string]struct{}, len(tokens))
	for i, t := range tokens {
		set := make(map[string]struct{}, 2)
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			set[p] = struct{}{}
		}
		if s != "" {
			set[s] = struct{}{}
		}
		out[i] = set
	}
	return out
}

// soundsAlike reports whether every token of a shares a code with the token
// at the same position of b.
func soundsAlike(a, b []map[string]struct{}) bool {
	for i := range a {
		if !overlaps(a[i], b[i]) {
			return false
		}
	}
	return true
}

func overlaps(a, b map[string]struct{}) bool {
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
