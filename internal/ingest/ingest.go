// Package ingest validates inbound caption events, throttles partial
// updates and reassembles chunked payloads before handing complete
// fragments to the pipeline.
//
// An [Ingestor] is not safe for concurrent use; the pipeline calls it from
// its event loop only.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/caption"
)

const (
	// DefaultThrottle is the minimum spacing between two accepted partials.
	DefaultThrottle = 100 * time.Millisecond

	// DefaultChunkTTL bounds how long an incomplete chunk assembly is kept.
	DefaultChunkTTL = 10 * time.Second
)

// ErrThrottled is returned by [Ingestor.Ingest] for a partial that arrives
// within the throttle window of the previously accepted partial.
var ErrThrottled = errors.New("ingest: partial throttled")

// Drop reasons reported to metrics.
const (
	reasonMalformed = "malformed"
	reasonSchema    = "schema"
	reasonType      = "type"
	reasonMissingID = "missing_id"
	reasonTooLong   = "too_long"
	reasonChunk     = "chunk_range"
	reasonThrottled = "throttled"
)

// Option configures an [Ingestor].
type Option func(*Ingestor)

// WithThrottle sets the partial throttle window. Zero disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(in *Ingestor) { in.throttle = d }
}

// WithMaxTextLen sets the per-event character cap.
func WithMaxTextLen(n int) Option {
	return func(in *Ingestor) { in.maxLen = n }
}

// WithChunkTTL sets how long incomplete chunk assemblies survive [Ingestor.Sweep].
func WithChunkTTL(d time.Duration) Option {
	return func(in *Ingestor) { in.chunkTTL = d }
}

// WithClock replaces time.Now as the ingestor's time source.
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) { in.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(in *Ingestor) { in.metrics = m }
}

// Ingestor turns raw event payloads into complete fragments.
//
// The partial throttle is global across speakers: one limiter bounds the
// downstream load regardless of how many participants talk at once.
// Chunked partials are throttled once reassembled, so a long partial is not
// starved of its own later chunks.
type Ingestor struct {
	sink      func(caption.Fragment)
	assembler *caption.Assembler
	limiter   *rate.Limiter

	throttle time.Duration
	maxLen   int
	chunkTTL time.Duration
	now      func() time.Time
	metrics  *observe.Metrics
}

// New creates an Ingestor that forwards complete fragments to sink.
func New(sink func(caption.Fragment), opts ...Option) *Ingestor {
	in := &Ingestor{
		sink:      sink,
		assembler: caption.NewAssembler(),
		throttle:  DefaultThrottle,
		maxLen:    caption.MaxTextLen,
		chunkTTL:  DefaultChunkTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(in)
	}
	if in.metrics == nil {
		in.metrics = observe.DefaultMetrics()
	}
	if in.throttle > 0 {
		in.limiter = rate.NewLimiter(rate.Every(in.throttle), 1)
	}
	return in
}

// Ingest decodes and validates payload. A complete fragment is forwarded to
// the sink before Ingest returns. A returned error names why the payload was
// dropped; callers log it at debug level at most. A nil error with nothing
// forwarded means a chunk was buffered or ignored as a duplicate.
func (in *Ingestor) Ingest(payload []byte) error {
	ctx := context.Background()

	ev, err := caption.Decode(payload)
	if err != nil {
		in.metrics.RecordFragmentDropped(ctx, reasonMalformed)
		return err
	}
	if err := ev.Validate(in.maxLen); err != nil {
		in.metrics.RecordFragmentDropped(ctx, dropReason(err))
		return err
	}
	return in.IngestFragment(ev.Fragment())
}

// IngestFragment runs throttling and reassembly for an already validated
// fragment, such as one echoed back from the local publisher.
func (in *Ingestor) IngestFragment(f caption.Fragment) error {
	now := in.now()

	f, complete := in.assembler.Add(f, now)
	if !complete {
		return nil
	}

	if !f.IsFinal && in.limiter != nil && !in.limiter.AllowN(now, 1) {
		in.metrics.RecordFragmentDropped(context.Background(), reasonThrottled)
		return ErrThrottled
	}

	in.metrics.RecordFragmentAccepted(context.Background(), f.IsFinal)
	in.sink(f)
	return nil
}

// Sweep discards chunk assemblies that have been incomplete for longer than
// the chunk TTL.
func (in *Ingestor) Sweep() {
	if n := in.assembler.Sweep(in.now(), in.chunkTTL); n > 0 {
		slog.Debug("ingest: discarded stale chunk assemblies", "count", n)
	}
}

// Pending returns the number of incomplete chunk assemblies.
func (in *Ingestor) Pending() int { return in.assembler.Len() }

func dropReason(err error) string {
	switch {
	case errors.Is(err, caption.ErrSchemaVersion):
		return reasonSchema
	case errors.Is(err, caption.ErrEventType):
		return reasonType
	case errors.Is(err, caption.ErrMissingID):
		return reasonMissingID
	case errors.Is(err, caption.ErrTextTooLong):
		return reasonTooLong
	case errors.Is(err, caption.ErrChunkRange):
		return reasonChunk
	default:
		return reasonMalformed
	}
}
