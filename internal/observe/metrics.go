// Package observe provides application-wide observability primitives for
// LinguaLink: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all LinguaLink metrics.
const meterName = "github.com/MrWong99/lingualink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Caption ingestion ---

	// FragmentsAccepted counts fragments handed to the pipeline. Attribute:
	//   attribute.Bool("final", ...)
	FragmentsAccepted metric.Int64Counter

	// FragmentsDropped counts rejected or throttled fragments. Attribute:
	//   attribute.String("reason", ...)
	FragmentsDropped metric.Int64Counter

	// FragmentsPublished counts fragments sent by the local publisher.
	FragmentsPublished metric.Int64Counter

	// --- Translation ---

	// TranslationRequests counts completed translation requests. Attribute:
	//   attribute.String("status", ...)
	TranslationRequests metric.Int64Counter

	// TranslationDuration tracks translation request latency.
	TranslationDuration metric.Float64Histogram

	// --- Playback ---

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PlaybackItems counts finished playback items. Attribute:
	//   attribute.String("status", ...)
	PlaybackItems metric.Int64Counter

	// PlaybackQueueDepth reports the number of queued playback slots.
	PlaybackQueueDepth metric.Int64Gauge

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Relay ---

	// RelayConnections tracks connected relay websocket clients.
	RelayConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// translation and synthesis round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FragmentsAccepted, err = m.Int64Counter("lingualink.fragments.accepted",
		metric.WithDescription("Caption fragments accepted by ingestion."),
	); err != nil {
		return nil, err
	}
	if met.FragmentsDropped, err = m.Int64Counter("lingualink.fragments.dropped",
		metric.WithDescription("Caption fragments dropped by ingestion, by reason."),
	); err != nil {
		return nil, err
	}
	if met.FragmentsPublished, err = m.Int64Counter("lingualink.fragments.published",
		metric.WithDescription("Caption fragments published by the local publisher."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRequests, err = m.Int64Counter("lingualink.translation.requests",
		metric.WithDescription("Completed translation requests by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackItems, err = m.Int64Counter("lingualink.playback.items",
		metric.WithDescription("Finished playback items by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("lingualink.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("lingualink.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TranslationDuration, err = m.Float64Histogram("lingualink.translation.duration",
		metric.WithDescription("Latency of translation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("lingualink.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingualink.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.PlaybackQueueDepth, err = m.Int64Gauge("lingualink.playback.queue_depth",
		metric.WithDescription("Number of playback slots waiting to be spoken."),
	); err != nil {
		return nil, err
	}
	if met.RelayConnections, err = m.Int64UpDownCounter("lingualink.relay.connections",
		metric.WithDescription("Number of connected relay clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFragmentAccepted counts one fragment handed to the pipeline.
func (m *Metrics) RecordFragmentAccepted(ctx context.Context, final bool) {
	m.FragmentsAccepted.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("final", final)),
	)
}

// RecordFragmentDropped counts one dropped fragment.
func (m *Metrics) RecordFragmentDropped(ctx context.Context, reason string) {
	m.FragmentsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordFragmentPublished counts n published wire chunks.
func (m *Metrics) RecordFragmentPublished(ctx context.Context, final bool, n int) {
	m.FragmentsPublished.Add(ctx, int64(n),
		metric.WithAttributes(attribute.Bool("final", final)),
	)
}

// RecordTranslation records the outcome and latency of one translation
// request.
func (m *Metrics) RecordTranslation(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.TranslationRequests.Add(ctx, 1, attrs)
	m.TranslationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTTS records the latency of one synthesis call.
func (m *Metrics) RecordTTS(ctx context.Context, provider string, d time.Duration) {
	m.TTSDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordPlaybackItem counts one finished playback item.
func (m *Metrics) RecordPlaybackItem(ctx context.Context, status string) {
	m.PlaybackItems.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// SetPlaybackQueueDepth reports the current playback queue length.
func (m *Metrics) SetPlaybackQueueDepth(ctx context.Context, n int) {
	m.PlaybackQueueDepth.Record(ctx, int64(n))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RelayConnected adjusts the relay connection gauge by delta.
func (m *Metrics) RelayConnected(ctx context.Context, delta int64) {
	m.RelayConnections.Add(ctx, delta)
}
