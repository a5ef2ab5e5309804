package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/lingualink/internal/observe"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is copied for each entry; Name is set to the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics ("translate", "tts", "stt").
	Kind string

	// Metrics records one provider request per attempt. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and ordered fallbacks of the same
// type, each with its own breaker. Entries must all be added before the
// group is used concurrently.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider tried after every earlier entry.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: v, breaker: NewCircuitBreaker(cb)})
}

// Names returns the entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = e.name
	}
	return out
}

// Breaker returns the breaker of the named entry, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range fg.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Call tries fn against each entry in order until one succeeds and returns
// its result with the entry name. Entries with an open breaker are skipped.
// A cancelled ctx stops the walk and returns ctx.Err() unwrapped.
func Call[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(ctx context.Context, name string, v T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		var res R
		err := e.breaker.Execute(func() error {
			var err error
			res, err = fn(ctx, e.name, e.value)
			return err
		})
		switch {
		case err == nil:
			fg.cfg.Metrics.RecordProviderRequest(ctx, e.name, fg.cfg.Kind, "ok")
			return res, e.name, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping provider, circuit open", "provider", e.name, "kind", fg.cfg.Kind)
		case ctx.Err() != nil:
			return zero, "", ctx.Err()
		default:
			fg.cfg.Metrics.RecordProviderError(ctx, e.name, fg.cfg.Kind)
			slog.Warn("provider failed, trying next", "provider", e.name, "kind", fg.cfg.Kind, "err", err)
		}
		lastErr = err
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
