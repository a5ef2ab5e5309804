package caption

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Split breaks f into fragments whose Text holds at most maxLen characters.
// Pieces are cut at rune boundaries and numbered with ChunkIndex/ChunkCount.
// When f already fits, Split returns it unchanged as a single element. Text
// beyond [MaxChunks] pieces is dropped.
func Split(f Fragment, maxLen int) []Fragment {
	if maxLen <= 0 {
		maxLen = MaxTextLen
	}
	if utf8.RuneCountInString(f.Text) <= maxLen {
		f.ChunkIndex, f.ChunkCount = 0, 0
		return []Fragment{f}
	}

	var parts []string
	rest := f.Text
	for rest != "" && len(parts) < MaxChunks {
		cut, n := 0, 0
		for cut < len(rest) && n < maxLen {
			_, size := utf8.DecodeRuneInString(rest[cut:])
			cut += size
			n++
		}
		parts = append(parts, rest[:cut])
		rest = rest[cut:]
	}

	out := make([]Fragment, len(parts))
	for i, p := range parts {
		c := f
		c.Text = p
		c.ChunkIndex = i
		c.ChunkCount = len(parts)
		out[i] = c
	}
	return out
}

// assembly tracks the chunks received so far for one utterance.
type assembly struct {
	parts    []string
	received int
	updated  time.Time
	latest   Fragment
	final    bool
}

// Assembler reassembles chunked fragments keyed by utterance id. It is not
// safe for concurrent use; callers serialize access.
type Assembler struct {
	pending map[string]*assembly
}

// NewAssembler returns an empty [Assembler].
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[string]*assembly)}
}

// Add records f. For unchunked fragments it returns f and true immediately.
// For chunks it returns the joined fragment and true once every index holds
// non-empty text, removing the assembly. A chunk for an index that already
// holds text is ignored. A chunk whose ChunkCount differs from the pending
// assembly replaces that assembly. Callers must validate the chunk range
// beforehand.
func (a *Assembler) Add(f Fragment, now time.Time) (Fragment, bool) {
	if !f.Chunked() {
		return f, true
	}

	as, ok := a.pending[f.UtteranceID]
	if !ok || len(as.parts) != f.ChunkCount {
		as = &assembly{parts: make([]string, f.ChunkCount)}
		a.pending[f.UtteranceID] = as
	}
	if as.parts[f.ChunkIndex] != "" || f.Text == "" {
		return Fragment{}, false
	}

	as.parts[f.ChunkIndex] = f.Text
	as.received++
	as.updated = now
	as.latest = f
	as.final = as.final || f.IsFinal

	if as.received < len(as.parts) {
		return Fragment{}, false
	}

	delete(a.pending, f.UtteranceID)
	out := as.latest
	out.Text = strings.Join(as.parts, "")
	out.IsFinal = as.final
	out.ChunkIndex, out.ChunkCount = 0, 0
	return out, true
}

// Sweep removes assemblies that have not received a chunk within ttl of now
// and returns how many were removed.
func (a *Assembler) Sweep(now time.Time, ttl time.Duration) int {
	removed := 0
	for id, as := range a.pending {
		if now.Sub(as.updated) > ttl {
			delete(a.pending, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of incomplete assemblies.
func (a *Assembler) Len() int { return len(a.pending) }
