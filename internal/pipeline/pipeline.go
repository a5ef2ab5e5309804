// Package pipeline wires the caption components together for one listener:
// ingestion feeds the utterance buffer and the translation orchestrator,
// translation results update the buffer and resolve playback slots, and
// finals are written to the history recorder.
//
// All buffer, ingestion and orchestrator state is touched only from the
// event loop. Entry points that may be called from other goroutines
// ([Pipeline.Ingest], [Pipeline.IngestLocal], [Pipeline.ApplySettings]) post
// their work onto the loop.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lingualink/internal/eventloop"
	"github.com/MrWong99/lingualink/internal/ingest"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/playback"
	"github.com/MrWong99/lingualink/internal/translation"
	"github.com/MrWong99/lingualink/internal/utterance"
	"github.com/MrWong99/lingualink/pkg/caption"
	"github.com/MrWong99/lingualink/pkg/event"
	"github.com/MrWong99/lingualink/pkg/history"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

const (
	// DefaultSweepInterval is how often stale chunk assemblies and idle
	// translation tasks are swept.
	DefaultSweepInterval = 5 * time.Second

	historyTimeout = 5 * time.Second
)

// Settings is the hot-reloadable listener configuration.
type Settings struct {
	AutoTranslate bool
	SourceLang    string
	TargetLang    string

	PlaybackEnabled bool
	Voice           string
	Volume          float64
	Device          string
	MutedSpeakers   []string
}

// Identity names the local listener and the meeting.
type Identity struct {
	MeetingID string
	UserID    string

	// STTProvider is stored with untranslated transcripts.
	STTProvider string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithBuffer sets the utterance buffer. Defaults to one of
// [utterance.DefaultCapacity].
func WithBuffer(b *utterance.Buffer) Option {
	return func(p *Pipeline) { p.buffer = b }
}

// WithHistory sets the history recorder. Defaults to [history.Nop].
func WithHistory(r history.Recorder) Option {
	return func(p *Pipeline) { p.history = r }
}

// WithIdentity sets the listener identity.
func WithIdentity(id Identity) Option {
	return func(p *Pipeline) { p.id = id }
}

// WithIngestOptions passes options through to the ingestor.
func WithIngestOptions(opts ...ingest.Option) Option {
	return func(p *Pipeline) { p.ingestOpts = append(p.ingestOpts, opts...) }
}

// WithTranslationOptions passes options through to the orchestrator.
func WithTranslationOptions(opts ...translation.Option) Option {
	return func(p *Pipeline) { p.translationOpts = append(p.translationOpts, opts...) }
}

// WithSweepInterval sets the housekeeping interval.
func WithSweepInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.sweepEvery = d }
}

// Pipeline is the listener-side caption pipeline.
type Pipeline struct {
	loop    eventloop.Scheduler
	buffer  *utterance.Buffer
	ingest  *ingest.Ingestor
	orch    *translation.Orchestrator
	queue   *playback.Queue
	history history.Recorder
	id      Identity

	ingestOpts      []ingest.Option
	translationOpts []translation.Option
	sweepEvery      time.Duration

	// loop-owned
	settings  Settings
	stopSweep func() bool
	stopped   bool
}

// New builds a pipeline around loop, translating with tr and speaking
// through queue. The queue's worker is run by the caller.
func New(loop eventloop.Scheduler, tr translate.Translator, queue *playback.Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		loop:       loop,
		queue:      queue,
		history:    history.Nop{},
		sweepEvery: DefaultSweepInterval,
	}
	for _, o := range opts {
		o(p)
	}
	if p.buffer == nil {
		p.buffer = utterance.NewBuffer(utterance.DefaultCapacity)
	}
	p.ingest = ingest.New(p.accept, p.ingestOpts...)
	p.orch = translation.New(loop, tr, p.onResult, p.translationOpts...)
	return p
}

// ── Entry points ─────────────────────────────────────────────────────────────

// Ingest hands a raw event payload to the pipeline. Safe for concurrent use.
func (p *Pipeline) Ingest(payload []byte) {
	p.loop.Post(func() {
		if err := p.ingest.Ingest(payload); err != nil {
			slog.Debug("pipeline: fragment dropped", "err", err)
		}
	})
}

// IngestLocal hands a fragment produced by the local publisher to the
// pipeline so the listener's own captions show up locally. Safe for
// concurrent use.
func (p *Pipeline) IngestLocal(f caption.Fragment) {
	p.loop.Post(func() {
		if err := p.ingest.IngestFragment(f); err != nil {
			slog.Debug("pipeline: local fragment dropped", "err", err)
		}
	})
}

// Subscribe feeds every payload received on ch into the pipeline until ctx
// is cancelled or the subscription ends.
func (p *Pipeline) Subscribe(ctx context.Context, ch event.Channel) error {
	sub, err := ch.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for payload := range sub {
			p.Ingest(payload)
		}
		slog.Debug("pipeline: event subscription ended")
	}()
	return nil
}

// ApplySettings replaces the listener settings. Safe for concurrent use;
// the change takes effect on the loop.
func (p *Pipeline) ApplySettings(s Settings) {
	p.loop.Post(func() { p.applySettings(s) })
}

func (p *Pipeline) applySettings(s Settings) {
	p.settings = s
	p.orch.SetSettings(translation.Settings{
		AutoTranslate: s.AutoTranslate,
		TargetLang:    s.TargetLang,
	})
	p.queue.Apply(playback.Settings{
		Enabled:        s.PlaybackEnabled,
		Voice:          s.Voice,
		Volume:         s.Volume,
		Device:         s.Device,
		LocalSpeakerID: p.id.UserID,
		MutedSpeakers:  s.MutedSpeakers,
	})
	slog.Info("pipeline: settings applied",
		"auto_translate", s.AutoTranslate,
		"target_lang", s.TargetLang,
		"playback", s.PlaybackEnabled,
	)
}

// Start schedules periodic housekeeping on the loop.
func (p *Pipeline) Start() {
	p.loop.Post(func() {
		p.stopped = false
		p.scheduleSweep()
	})
}

// Stop cancels housekeeping. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.loop.Post(func() {
		p.stopped = true
		if p.stopSweep != nil {
			p.stopSweep()
			p.stopSweep = nil
		}
	})
}

// Snapshot returns the buffered utterances. Safe for concurrent use.
func (p *Pipeline) Snapshot() []utterance.Utterance { return p.buffer.Snapshot() }

// Status returns the playback status string.
func (p *Pipeline) Status() string { return p.queue.Status() }

// Resume restarts speech output after the device reported that playback
// was blocked. It is the user-gesture entry point of a blocked listener.
func (p *Pipeline) Resume() { p.queue.Resume() }

// Speaking reports whether the listener's speech output is active. Used as
// the inverse capture predicate of the local publisher.
func (p *Pipeline) Speaking() bool { return p.queue.Speaking() }

// ── Loop-side handlers ───────────────────────────────────────────────────────

func (p *Pipeline) scheduleSweep() {
	if p.stopped || p.sweepEvery <= 0 {
		return
	}
	p.stopSweep = p.loop.AfterFunc(p.sweepEvery, func() {
		p.ingest.Sweep()
		p.orch.Sweep()
		p.scheduleSweep()
	})
}

// accept is the ingestion sink.
func (p *Pipeline) accept(f caption.Fragment) {
	if f.SourceLang == "" {
		f.SourceLang = p.settings.SourceLang
	}

	prev, seen := p.buffer.Get(f.UtteranceID)
	if seen && prev.IsFinal {
		// Late partials never reopen a final utterance, and a final that was
		// already translated is a duplicate.
		if !f.IsFinal || (prev.Text == f.Text && prev.TranslatedText != "") {
			return
		}
	}

	p.buffer.Upsert(utterance.Utterance{
		ID:          f.UtteranceID,
		SpeakerID:   f.SpeakerID,
		SpeakerName: f.SpeakerName,
		SourceLang:  f.SourceLang,
		Text:        f.Text,
		IsFinal:     f.IsFinal,
		Timestamp:   f.SentAt,
	})

	// The slot is reserved before the orchestrator sees the final, which
	// may settle it synchronously.
	reserved := false
	if f.IsFinal {
		reserved = p.queue.Reserve(playback.Item{
			UtteranceID: f.UtteranceID,
			SpeakerID:   f.SpeakerID,
			SourceText:  f.Text,
			SourceLang:  f.SourceLang,
			Timestamp:   f.SentAt,
		})
	}

	offered := p.orch.Offer(f)
	if !f.IsFinal || offered {
		return
	}
	if reserved {
		p.queue.Resolve(f.UtteranceID, f.Text, f.SourceLang)
	}
	if !seen || !prev.IsFinal {
		p.recordTranscript(f.UtteranceID, f.SpeakerID, f.SpeakerName, f.Text)
	}
}

// onResult handles translation results on the loop.
func (p *Pipeline) onResult(r translation.Result) {
	if r.Err == nil && r.Text != "" {
		p.buffer.UpdateTranslation(r.UtteranceID, r.Text)
	}
	if !r.Final {
		return
	}

	u, ok := p.buffer.Get(r.UtteranceID)
	if !ok {
		u = utterance.Utterance{ID: r.UtteranceID, Text: r.Request.Text, SourceLang: r.Request.SourceLang}
	}

	if r.Err != nil || r.Text == "" {
		p.queue.Resolve(r.UtteranceID, u.Text, u.SourceLang)
		p.recordTranscript(u.ID, u.SpeakerID, u.SpeakerName, u.Text)
		return
	}

	p.queue.Resolve(r.UtteranceID, r.Text, r.Request.TargetLang)
	rec := history.HistoryRecord{
		UserID:         p.id.UserID,
		SpeakerID:      u.SpeakerID,
		MeetingID:      p.id.MeetingID,
		SourceLang:     r.Request.SourceLang,
		TargetLang:     r.Request.TargetLang,
		OriginalText:   r.Request.Text,
		TranslatedText: r.Text,
		CreatedAt:      time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "history.record",
			trace.WithAttributes(attribute.String("utterance_id", r.UtteranceID)))
		err := p.history.Record(ctx, rec)
		observe.EndSpan(span, err)
		if err != nil {
			observe.Logger(ctx).Warn("pipeline: history record failed", "utterance_id", r.UtteranceID, "err", err)
		}
	}()
}

func (p *Pipeline) recordTranscript(id, speakerID, speakerName, text string) {
	rec := history.TranscriptRecord{
		MeetingID:   p.id.MeetingID,
		SpeakerID:   speakerID,
		SpeakerName: speakerName,
		Text:        text,
		STTProvider: p.id.STTProvider,
		Timestamp:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "history.record_transcript",
			trace.WithAttributes(attribute.String("utterance_id", id)))
		err := p.history.RecordTranscript(ctx, rec)
		observe.EndSpan(span, err)
		if err != nil {
			observe.Logger(ctx).Warn("pipeline: transcript record failed", "utterance_id", id, "err", err)
		}
	}()
}
