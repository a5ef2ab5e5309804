// Package cache provides a caching decorator for translate.Translator.
//
// Identical (text, source, target) requests are common in a call: the same
// final text is re-offered after a failed attempt, and several listeners
// sharing a backend cache ask for the same captions. Results are stored in a
// [Store], either the in-process [Memory] LRU or a shared [Redis] instance.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// DefaultTTL is how long a cached translation stays valid.
const DefaultTTL = 24 * time.Hour

// Store is a string key/value store with per-entry expiry.
type Store interface {
	// Get returns the cached value and true, or false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

var _ translate.Translator = (*Translator)(nil)

// Translator wraps another translator with a result cache. Store errors are
// logged and treated as misses; they never fail a translation.
type Translator struct {
	next  translate.Translator
	store Store
	ttl   time.Duration
}

// New wraps next. A ttl <= 0 selects [DefaultTTL].
func New(next translate.Translator, store Store, ttl time.Duration) *Translator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Translator{next: next, store: store, ttl: ttl}
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	key := Key(req)

	if v, ok, err := t.store.Get(ctx, key); err != nil {
		slog.Warn("translation cache get failed", "err", err)
	} else if ok {
		return translate.Result{Text: v, Provider: "cache", Cached: true}, nil
	}

	res, err := t.next.Translate(ctx, req)
	if err != nil {
		return res, err
	}
	if err := t.store.Set(ctx, key, res.Text, t.ttl); err != nil {
		slog.Warn("translation cache set failed", "err", err)
	}
	return res, nil
}

// Key derives the cache key for req.
func Key(req translate.Request) string {
	h := sha256.New()
	h.Write([]byte(req.SourceLang))
	h.Write([]byte{0})
	h.Write([]byte(req.TargetLang))
	h.Write([]byte{0})
	h.Write([]byte(req.Text))
	return "lingualink:tr:" + hex.EncodeToString(h.Sum(nil))
}
