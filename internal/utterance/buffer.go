// Package utterance holds the bounded, ordered store of caption utterances
// shown to and spoken for the listener.
package utterance

import (
	"slices"
	"sync"
	"time"
)

// DefaultCapacity is the number of utterances retained when no capacity is
// configured.
const DefaultCapacity = 20

// Utterance is one contiguous spoken unit, accumulating partial updates
// before being finalized.
type Utterance struct {
	ID          string
	SpeakerID   string
	SpeakerName string
	SourceLang  string
	Text        string

	// TranslatedText is empty until a translation has been written with
	// [Buffer.UpdateTranslation].
	TranslatedText string

	IsFinal   bool
	Timestamp time.Time
}

// Buffer keeps at most capacity utterances, unique by ID and sorted
// ascending by Timestamp. When over capacity the oldest entries are evicted
// first.
//
// The pipeline mutates the buffer from its event loop only; the lock exists
// so that HTTP handlers can take snapshots from other goroutines.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Utterance
	capacity int
}

// NewBuffer returns an empty buffer. A capacity <= 0 selects
// [DefaultCapacity].
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Utterance, 0, capacity),
		capacity: capacity,
	}
}

// Upsert inserts u or merges it into the entry with the same ID.
//
// Merging overwrites each field with the newer value, except that empty
// SpeakerName and TranslatedText never clear an earlier value and a final
// utterance is never reverted by a later partial. It reports whether the
// entry was newly inserted.
func (b *Buffer) Upsert(u Utterance) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	inserted := false
	if i := b.indexLocked(u.ID); i >= 0 {
		b.entries[i] = merge(b.entries[i], u)
	} else {
		b.entries = append(b.entries, u)
		inserted = true
	}

	slices.SortStableFunc(b.entries, func(x, y Utterance) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	b.evictLocked()
	return inserted
}

// UpdateTranslation sets TranslatedText on the utterance with the given ID.
// It is a no-op, returning false, when the ID is not buffered.
func (b *Buffer) UpdateTranslation(id, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexLocked(id)
	if i < 0 {
		return false
	}
	b.entries[i].TranslatedText = text
	return true
}

// Get returns the utterance with the given ID.
func (b *Buffer) Get(id string) (Utterance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if i := b.indexLocked(id); i >= 0 {
		return b.entries[i], true
	}
	return Utterance{}, false
}

// Snapshot returns a copy of all utterances in ascending timestamp order.
func (b *Buffer) Snapshot() []Utterance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.entries)
}

// Len returns the number of buffered utterances.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Capacity returns the configured maximum number of entries.
func (b *Buffer) Capacity() int { return b.capacity }

func (b *Buffer) indexLocked(id string) int {
	return slices.IndexFunc(b.entries, func(u Utterance) bool { return u.ID == id })
}

// evictLocked drops entries from the front until the buffer fits. Survivors
// are copied to a fresh slice so evicted entries can be garbage collected.
func (b *Buffer) evictLocked() {
	if len(b.entries) <= b.capacity {
		return
	}
	keep := b.entries[len(b.entries)-b.capacity:]
	fresh := make([]Utterance, len(keep), b.capacity)
	copy(fresh, keep)
	b.entries = fresh
}

func merge(old, upd Utterance) Utterance {
	out := upd
	if out.SpeakerName == "" {
		out.SpeakerName = old.SpeakerName
	}
	if out.TranslatedText == "" {
		out.TranslatedText = old.TranslatedText
	}
	if old.IsFinal && !upd.IsFinal {
		out.Text = old.Text
		out.IsFinal = true
	}
	return out
}
