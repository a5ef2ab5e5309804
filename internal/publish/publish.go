// Package publish forwards the local speech recognizer's transcripts to the
// other call participants as caption events.
//
// A [Publisher] reads an [stt.SessionHandle], assigns every utterance a fresh
// UUID, drops transcripts while the capture predicate is false (typically
// while the listener's own translated speech is playing) and rate-limits
// partials at the source with the same window the receiving side throttles
// with. Finals are never rate-limited and always close the current utterance.
package publish

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/caption"
	"github.com/MrWong99/lingualink/pkg/event"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// DefaultThrottle is the minimum spacing between two published partials.
const DefaultThrottle = 100 * time.Millisecond

const publishTimeout = 2 * time.Second

// ErrStarted is returned by Start on a publisher that is already running or
// has been stopped.
var ErrStarted = errors.New("publish: already started")

// Identity names the local participant.
type Identity struct {
	SpeakerID   string
	SpeakerName string

	// Lang is the recognizer language, used when a transcript carries none.
	Lang string
}

// Option configures a [Publisher].
type Option func(*Publisher)

// WithCapture sets the capture predicate. Transcripts that arrive while it
// returns false are discarded.
func WithCapture(fn func() bool) Option {
	return func(p *Publisher) { p.capture = fn }
}

// WithThrottle sets the partial rate-limit window. Zero disables it.
func WithThrottle(d time.Duration) Option {
	return func(p *Publisher) { p.throttle = d }
}

// WithMaxTextLen sets the per-event character cap above which text is split
// into chunks.
func WithMaxTextLen(n int) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// WithLocalSink also hands every published fragment to fn, so the listener's
// own captions appear in the local view.
func WithLocalSink(fn func(caption.Fragment)) Option {
	return func(p *Publisher) { p.local = fn }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithCorrector rewrites transcript text before it is published, e.g. to fix
// misrecognised participant names.
func WithCorrector(fn func(string) string) Option {
	return func(p *Publisher) { p.correct = fn }
}

// WithClock overrides the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// WithIDGenerator overrides the utterance id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Publisher) { p.newID = fn }
}

// Publisher forwards recognizer output to an event channel.
type Publisher struct {
	ch      event.Channel
	sess    stt.SessionHandle
	id      Identity
	capture func() bool
	local   func(caption.Fragment)
	correct func(string) string
	metrics *observe.Metrics
	now     func() time.Time
	newID   func() string

	throttle time.Duration
	maxLen   int
	limiter  *rate.Limiter

	// current is the id of the open utterance; touched only by the forward
	// goroutine.
	current string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a publisher that reads sess and writes to ch. It does nothing
// until Start is called.
func New(ch event.Channel, sess stt.SessionHandle, id Identity, opts ...Option) *Publisher {
	p := &Publisher{
		ch:       ch,
		sess:     sess,
		id:       id,
		capture:  func() bool { return true },
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
		newID:    uuid.NewString,
		throttle: DefaultThrottle,
		maxLen:   caption.MaxTextLen,
	}
	for _, o := range opts {
		o(p)
	}
	if p.throttle > 0 {
		p.limiter = rate.NewLimiter(rate.Every(p.throttle), 1)
	}
	return p
}

// Start attaches to the recognizer session and begins forwarding. A
// publisher can be started once.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrStarted
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.forward(ctx)
	return nil
}

// Stop detaches from the recognizer and waits for the forwarding goroutine
// to exit. It does not close the session. Calling Stop more than once, or
// before Start, is safe.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Publisher) forward(ctx context.Context) {
	defer close(p.done)
	partials, finals := p.sess.Partials(), p.sess.Finals()

	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			p.handle(ctx, t, false)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			p.handle(ctx, t, true)
		}
	}
	slog.Debug("publish: recognizer session ended")
}

func (p *Publisher) handle(ctx context.Context, t stt.Transcript, final bool) {
	text := strings.TrimSpace(t.Text)
	if !p.capture() {
		if final {
			p.current = ""
		}
		return
	}
	if text == "" {
		return
	}
	if !final && p.limiter != nil && !p.limiter.Allow() {
		return
	}

	if p.correct != nil {
		text = p.correct(text)
	}

	if p.current == "" {
		p.current = p.newID()
	}
	lang := t.Language
	if lang == "" {
		lang = p.id.Lang
	}
	f := caption.Fragment{
		UtteranceID: p.current,
		SpeakerID:   p.id.SpeakerID,
		SpeakerName: p.id.SpeakerName,
		SourceLang:  lang,
		Text:        text,
		IsFinal:     final,
		SentAt:      p.now(),
	}
	if final {
		p.current = ""
	}

	if p.local != nil {
		p.local(f)
	}
	p.publish(ctx, f)
}

func (p *Publisher) publish(ctx context.Context, f caption.Fragment) {
	parts := caption.Split(f, p.maxLen)
	for _, part := range parts {
		payload, err := caption.Encode(part)
		if err != nil {
			slog.Warn("publish: encode failed", "utterance_id", f.UtteranceID, "err", err)
			return
		}
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.ch.Publish(pctx, payload)
		cancel()
		if err != nil {
			slog.Warn("publish: send failed", "utterance_id", f.UtteranceID, "err", err)
			return
		}
	}
	p.metrics.RecordFragmentPublished(ctx, f.IsFinal, len(parts))
}
