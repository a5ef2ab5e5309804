// Package playback turns finished utterances into speech, one clip at a
// time, in the order the utterances were finalized.
//
// The [Queue] holds slots. A slot is reserved when a final utterance
// arrives and resolved with the text to speak once translation has
// finished, failed or turned out to be unnecessary. A single worker
// goroutine waits on the head slot, synthesizes it, plays it and waits for
// the device to report the end of the clip before it looks at the next
// slot. Translation completing out of order therefore never reorders
// speech, and at most one clip is synthesizing or playing at any time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

const (
	// DefaultCooldown is how long Speaking stays true after a clip ends.
	DefaultCooldown = 200 * time.Millisecond

	// DefaultSlotTimeout is how long the head slot may wait for its text
	// before the source text is spoken instead.
	DefaultSlotTimeout = 10 * time.Second

	// DefaultSpokenLimit bounds the set of remembered utterance ids.
	DefaultSpokenLimit = 80

	// DefaultVolume is used when no volume has been configured.
	DefaultVolume = 0.75

	// DefaultSynthTimeout bounds a single synthesis request.
	DefaultSynthTimeout = 15 * time.Second
)

// Status strings reported by [Queue.Status].
const (
	StatusIdle     = "idle"
	StatusSpeaking = "speaking"
	StatusBlocked  = "blocked: enable audio"
	StatusDisabled = "disabled"
)

// Settings is the listener-owned configuration the queue consumes.
type Settings struct {
	Enabled bool
	Voice   string

	// Volume is clamped to 0.0–1.0.
	Volume float64

	// Device selects the output; unknown ids fall back to the default.
	Device string

	// LocalSpeakerID is the listener's own user id. Utterances authored by
	// it are never spoken.
	LocalSpeakerID string

	MutedSpeakers []string
}

// Item describes a final utterance offered for playback.
type Item struct {
	UtteranceID string
	SpeakerID   string
	SourceText  string
	SourceLang  string

	// Timestamp is when the speaker produced the utterance.
	Timestamp time.Time
}

type slot struct {
	item     Item
	deadline time.Time
	resolved bool
	text     string
	lang     string
}

// Option configures a [Queue].
type Option func(*Queue)

// WithCooldown sets how long Speaking stays true after a clip ends.
func WithCooldown(d time.Duration) Option {
	return func(q *Queue) { q.cooldown = d }
}

// WithSlotTimeout sets the head-slot deadline.
func WithSlotTimeout(d time.Duration) Option {
	return func(q *Queue) { q.slotTimeout = d }
}

// WithSpokenLimit bounds the remembered utterance ids.
func WithSpokenLimit(n int) Option {
	return func(q *Queue) { q.spokenLimit = n }
}

// WithSynthTimeout bounds each synthesis call.
func WithSynthTimeout(d time.Duration) Option {
	return func(q *Queue) { q.synthTimeout = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is the speech playback queue. All methods are safe for concurrent
// use; the worker started by [Queue.Run] is the only goroutine that touches
// audio tracks.
type Queue struct {
	synth   tts.Provider
	devices *audio.Router

	cooldown     time.Duration
	slotTimeout  time.Duration
	spokenLimit  int
	synthTimeout time.Duration
	metrics      *observe.Metrics
	now          func() time.Time

	mu        sync.Mutex
	settings  Settings
	muted     map[string]bool
	enabledAt time.Time
	slots     []*slot
	spoken    map[string]bool
	order     []string
	gen       uint64
	paused    bool
	playing   bool
	lastEnd   time.Time
	current   audio.Track
	status    string

	wake chan struct{}
}

// New creates a disabled queue that synthesizes with synth and plays on the
// devices of router. Call [Queue.Apply] to enable it and [Queue.Run] to
// start the worker.
func New(synth tts.Provider, router *audio.Router, opts ...Option) *Queue {
	q := &Queue{
		synth:        synth,
		devices:      router,
		cooldown:     DefaultCooldown,
		slotTimeout:  DefaultSlotTimeout,
		spokenLimit:  DefaultSpokenLimit,
		synthTimeout: DefaultSynthTimeout,
		now:          time.Now,
		settings:     Settings{Volume: DefaultVolume},
		muted:        make(map[string]bool),
		spoken:       make(map[string]bool),
		status:       StatusDisabled,
		wake:         make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}
	return q
}

// ── Settings ─────────────────────────────────────────────────────────────────

// Apply replaces the queue settings. Turning playback off clears the queue,
// stops the current clip and forgets which utterances were spoken. Turning
// it on records the moment so that older utterances are never spoken.
func (q *Queue) Apply(s Settings) {
	s.Volume = audio.ClampVolume(s.Volume)

	q.mu.Lock()
	was := q.settings.Enabled
	q.settings = s
	q.muted = make(map[string]bool, len(s.MutedSpeakers))
	for _, id := range s.MutedSpeakers {
		q.muted[id] = true
	}
	var stop audio.Track
	switch {
	case was && !s.Enabled:
		stop = q.clearLocked()
		q.status = StatusDisabled
	case !was && s.Enabled:
		q.enabledAt = q.now()
		q.status = StatusIdle
	}
	q.mu.Unlock()

	if stop != nil {
		stop.Stop()
	}
	q.signal()
}

// Settings returns the active settings.
func (q *Queue) Settings() Settings {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settings
}

// Enable turns playback on with the current settings.
func (q *Queue) Enable() {
	s := q.Settings()
	s.Enabled = true
	q.Apply(s)
}

// Disable turns playback off. See [Queue.Apply].
func (q *Queue) Disable() {
	s := q.Settings()
	s.Enabled = false
	q.Apply(s)
}

// clearLocked drops every slot and the spoken set and returns the track to
// stop, if any.
func (q *Queue) clearLocked() audio.Track {
	q.slots = nil
	q.spoken = make(map[string]bool)
	q.order = nil
	q.paused = false
	q.gen++
	t := q.current
	q.current = nil
	q.metrics.SetPlaybackQueueDepth(context.Background(), 0)
	return t
}

// ── Slots ────────────────────────────────────────────────────────────────────

// Reserve appends a slot for it and reports whether it was accepted.
// Utterances are rejected while playback is off, when authored by the
// local listener or a muted speaker, when older than the moment playback
// was enabled, and when the id was already reserved.
func (q *Queue) Reserve(it Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case !q.settings.Enabled:
		return false
	case it.UtteranceID == "":
		return false
	case q.settings.LocalSpeakerID != "" && it.SpeakerID == q.settings.LocalSpeakerID:
		return false
	case q.muted[it.SpeakerID]:
		return false
	case !it.Timestamp.IsZero() && it.Timestamp.Before(q.enabledAt):
		return false
	case q.spoken[it.UtteranceID]:
		return false
	}

	q.remember(it.UtteranceID)
	q.slots = append(q.slots, &slot{item: it, deadline: q.now().Add(q.slotTimeout)})
	q.metrics.SetPlaybackQueueDepth(context.Background(), len(q.slots))
	q.signalLocked()
	return true
}

// Resolve sets the text to speak for a reserved utterance. It reports
// false when no unresolved slot exists for id.
func (q *Queue) Resolve(id, text, lang string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.slots {
		if s.item.UtteranceID != id || s.resolved {
			continue
		}
		s.resolved = true
		s.text = text
		s.lang = lang
		q.signalLocked()
		return true
	}
	return false
}

// Reserved reports whether id has a slot that is still queued.
func (q *Queue) Reserved(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.slots {
		if s.item.UtteranceID == id {
			return true
		}
	}
	return false
}

// remember adds id to the spoken set, evicting the oldest entry when full.
func (q *Queue) remember(id string) {
	q.spoken[id] = true
	q.order = append(q.order, id)
	for len(q.order) > q.spokenLimit {
		delete(q.spoken, q.order[0])
		q.order = q.order[1:]
	}
}

// Len returns the number of queued slots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// ── State ────────────────────────────────────────────────────────────────────

// Speaking reports whether a clip is being synthesized or played, or ended
// less than the cooldown ago.
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing || (!q.lastEnd.IsZero() && q.now().Sub(q.lastEnd) < q.cooldown)
}

// Status returns a short human-readable state.
func (q *Queue) Status() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Resume restarts a worker paused by a blocked device.
func (q *Queue) Resume() {
	q.mu.Lock()
	if q.paused {
		q.paused = false
		if q.settings.Enabled {
			q.status = StatusIdle
		}
	}
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	q.mu.Lock()
	q.signalLocked()
	q.mu.Unlock()
}

func (q *Queue) signalLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// ── Worker ───────────────────────────────────────────────────────────────────

// Run drains the queue until ctx is cancelled. It must be called at most
// once.
func (q *Queue) Run(ctx context.Context) error {
	defer func() {
		q.mu.Lock()
		t := q.current
		q.current = nil
		q.mu.Unlock()
		if t != nil {
			t.Stop()
		}
	}()

	for {
		s, gen, wait := q.next()
		if s == nil {
			var (
				timer   *time.Timer
				timeout <-chan time.Time
			)
			if wait > 0 {
				timer = time.NewTimer(wait)
				timeout = timer.C
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
			case <-timeout:
			}
			if timer != nil {
				timer.Stop()
			}
			continue
		}
		q.play(ctx, s, gen)
	}
}

// next pops the head slot when it is ready to play. Otherwise it returns
// how long to wait for the head deadline, or zero to wait for a signal.
func (q *Queue) next() (*slot, uint64, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.settings.Enabled || q.paused || len(q.slots) == 0 {
		return nil, 0, 0
	}
	head := q.slots[0]
	if !head.resolved {
		left := head.deadline.Sub(q.now())
		if left > 0 {
			return nil, 0, left
		}
		slog.Debug("playback: slot deadline passed, speaking source text", "utterance_id", head.item.UtteranceID)
		head.resolved = true
	}
	if head.text == "" {
		head.text = head.item.SourceText
		head.lang = head.item.SourceLang
	}
	q.slots = q.slots[1:]
	q.metrics.SetPlaybackQueueDepth(context.Background(), len(q.slots))
	return head, q.gen, 0
}

// play synthesizes and plays s, waiting for the clip to end. The queue
// reports Speaking from the start of synthesis.
func (q *Queue) play(ctx context.Context, s *slot, gen uint64) {
	q.mu.Lock()
	voice := q.settings.Voice
	q.playing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.playing = false
		q.mu.Unlock()
	}()

	ctx, span := observe.StartSpan(ctx, "playback.play", trace.WithAttributes(
		attribute.String("utterance_id", s.item.UtteranceID),
		attribute.String("lang", s.lang),
	))
	var playErr error
	defer func() { observe.EndSpan(span, playErr) }()

	sctx, cancel := context.WithTimeout(ctx, q.synthTimeout)
	start := time.Now()
	clip, err := q.synth.Synthesize(sctx, tts.Request{Text: s.text, Lang: s.lang, Voice: voice})
	cancel()
	q.metrics.RecordTTS(ctx, "synth", time.Since(start))
	if err != nil {
		playErr = err
		slog.Warn("playback: synthesis failed", "utterance_id", s.item.UtteranceID, "err", err)
		q.finish(gen, "synth_error", fmt.Sprintf("error: %v", err))
		return
	}

	q.mu.Lock()
	if gen != q.gen || !q.settings.Enabled {
		// Playback was turned off while synthesizing; drop the clip.
		q.mu.Unlock()
		q.metrics.RecordPlaybackItem(ctx, "discarded")
		return
	}
	dev := q.devices.Device(q.settings.Device)
	volume := q.settings.Volume
	q.mu.Unlock()

	track, err := dev.Play(clip, volume)
	if errors.Is(err, audio.ErrPlaybackBlocked) {
		q.mu.Lock()
		if gen == q.gen {
			q.slots = append([]*slot{s}, q.slots...)
			q.paused = true
			q.status = StatusBlocked
		}
		q.mu.Unlock()
		slog.Info("playback: output blocked, waiting for resume", "utterance_id", s.item.UtteranceID)
		q.metrics.RecordPlaybackItem(ctx, "blocked")
		return
	}
	if err != nil {
		playErr = err
		slog.Warn("playback: play failed", "utterance_id", s.item.UtteranceID, "device", dev.ID(), "err", err)
		q.finish(gen, "play_error", fmt.Sprintf("error: %v", err))
		return
	}

	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		track.Stop()
		return
	}
	q.current = track
	q.status = StatusSpeaking
	q.mu.Unlock()

	select {
	case <-track.Done():
	case <-ctx.Done():
		track.Stop()
	}
	track.Stop()

	status := "spoken"
	if err := track.Err(); err != nil {
		slog.Warn("playback: clip ended with error", "utterance_id", s.item.UtteranceID, "err", err)
		playErr = err
		status = "play_error"
	}

	q.mu.Lock()
	q.playing = false
	q.lastEnd = q.now()
	if q.current == track {
		q.current = nil
	}
	if q.settings.Enabled && !q.paused {
		q.status = StatusIdle
	}
	q.mu.Unlock()
	q.metrics.RecordPlaybackItem(ctx, status)
}

func (q *Queue) finish(gen uint64, metricStatus, status string) {
	q.mu.Lock()
	if gen == q.gen && q.settings.Enabled {
		q.status = status
	}
	q.mu.Unlock()
	q.metrics.RecordPlaybackItem(context.Background(), metricStatus)
}
