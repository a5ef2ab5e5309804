// Package translation drives the external translator for caption
// utterances with a per-utterance debounce, coalesce and single-flight
// state machine.
//
// Each utterance id owns a [Task]. Partial updates arriving faster than the
// debounce window are coalesced into one pending value, finals bypass the
// debounce, and a superseding text is sent only after the previous request
// for the same id completes. Failed requests are not retried directly; the
// next fragment for the utterance triggers a fresh attempt.
//
// An [Orchestrator] is driven from a single [eventloop.Scheduler]; all of
// its methods must be called on that loop.
package translation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lingualink/internal/eventloop"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/caption"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

const (
	// DefaultDebounce is the minimum spacing between two partial requests
	// for the same utterance.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultTimeout bounds a single translation request.
	DefaultTimeout = 8 * time.Second

	// DefaultTaskTTL is how long an idle, never-finalized task survives a
	// [Orchestrator.Sweep].
	DefaultTaskTTL = 60 * time.Second
)

// ErrReset is reported for finals whose task was dropped by a settings
// change before a translation arrived.
var ErrReset = errors.New("translation: settings changed")

// Settings is the listener-owned configuration the orchestrator consumes.
type Settings struct {
	AutoTranslate bool
	TargetLang    string
}

// Result reports the outcome of one translation request, or the settlement
// of a final whose text had already been translated.
type Result struct {
	UtteranceID string
	Request     translate.Request

	// Text is the translated text. Empty when Err is set.
	Text string

	// Final is true for the last report of an utterance: the request carried
	// the final text and nothing newer is queued behind it.
	Final bool

	Err      error
	Duration time.Duration
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithDebounce sets the partial debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.window = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithTaskTTL sets the idle task lifetime used by [Orchestrator.Sweep].
func WithTaskTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.ttl = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

type entry struct {
	task *Task
	src  string

	// translated is the translator output for task.LastTranslated.
	translated string

	stopFlush func() bool
	flushAt   time.Time
}

// Orchestrator owns the per-utterance translation tasks.
type Orchestrator struct {
	sched      eventloop.Scheduler
	translator translate.Translator
	onResult   func(Result)

	settings Settings
	tasks    map[string]*entry
	epoch    uint64

	window  time.Duration
	timeout time.Duration
	ttl     time.Duration
	metrics *observe.Metrics
}

// New creates an Orchestrator. onResult is invoked on the loop for every
// completed request and for every final settled without a new request.
func New(sched eventloop.Scheduler, tr translate.Translator, onResult func(Result), opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sched:      sched,
		translator: tr,
		onResult:   onResult,
		tasks:      make(map[string]*entry),
		window:     DefaultDebounce,
		timeout:    DefaultTimeout,
		ttl:        DefaultTaskTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.onResult == nil {
		o.onResult = func(Result) {}
	}
	return o
}

// Settings returns the active settings.
func (o *Orchestrator) Settings() Settings { return o.settings }

// SetSettings replaces the active settings. Turning translation off or
// changing the target language drops every task; responses for requests
// already in flight are discarded when they return. Finals among the
// dropped tasks are reported with [ErrReset].
func (o *Orchestrator) SetSettings(s Settings) {
	prev := o.settings
	o.settings = s
	if prev.TargetLang != s.TargetLang || (prev.AutoTranslate && !s.AutoTranslate) {
		o.Reset()
	}
}

// Wants reports whether a fragment in sourceLang would be translated under
// the current settings.
func (o *Orchestrator) Wants(sourceLang string) bool {
	return o.settings.AutoTranslate && o.settings.TargetLang != "" &&
		!SameLanguage(sourceLang, o.settings.TargetLang)
}

// Offer hands a fragment to the state machine. It reports false when the
// fragment is not translated under the current settings, in which case no
// [Result] will follow.
func (o *Orchestrator) Offer(f caption.Fragment) bool {
	if !o.Wants(f.SourceLang) {
		return false
	}

	now := o.sched.Now()
	e, ok := o.tasks[f.UtteranceID]
	if !ok {
		e = &entry{task: NewTask(now)}
		o.tasks[f.UtteranceID] = e
	}
	e.src = f.SourceLang

	d := e.task.Offer(Offer{Text: f.Text, Final: f.IsFinal}, now, o.window)
	o.apply(f.UtteranceID, e, d)
	return true
}

// State returns the state of the task for id, and false when no task exists.
func (o *Orchestrator) State(id string) (State, bool) {
	e, ok := o.tasks[id]
	if !ok {
		return StateIdle, false
	}
	return e.task.State(), true
}

// Len returns the number of live tasks.
func (o *Orchestrator) Len() int { return len(o.tasks) }

// Reset drops all tasks and cancels their flush timers. Every dropped task
// that had already accepted its final is reported as a failed final result
// with [ErrReset], so that its consumer does not wait for it.
func (o *Orchestrator) Reset() {
	dropped := make([]Result, 0, len(o.tasks))
	for id, e := range o.tasks {
		o.stopTimer(e)
		delete(o.tasks, id)
		if text, ok := e.task.FinalText(); ok {
			dropped = append(dropped, Result{
				UtteranceID: id,
				Request:     o.request(e, text),
				Final:       true,
				Err:         ErrReset,
			})
		}
	}
	o.epoch++
	for _, r := range dropped {
		o.onResult(r)
	}
}

// Sweep removes tasks that are not in flight and have not been touched
// within the task TTL. It returns the number removed.
func (o *Orchestrator) Sweep() int {
	now := o.sched.Now()
	removed := 0
	for id, e := range o.tasks {
		if e.task.InFlight || now.Sub(e.task.Touched) <= o.ttl {
			continue
		}
		o.stopTimer(e)
		delete(o.tasks, id)
		removed++
	}
	if removed > 0 {
		slog.Debug("translation: swept idle tasks", "count", removed)
	}
	return removed
}

func (o *Orchestrator) apply(id string, e *entry, d Decision) {
	switch d.Action {
	case ActionSend:
		o.stopTimer(e)
		o.send(id, e, d.Offer)
	case ActionDebounce:
		o.scheduleFlush(id, e, d.FlushAt)
	case ActionForget:
		o.stopTimer(e)
		delete(o.tasks, id)
		if d.Settled {
			o.onResult(Result{
				UtteranceID: id,
				Request:     o.request(e, e.task.LastTranslated),
				Text:        e.translated,
				Final:       true,
			})
		}
	}
}

func (o *Orchestrator) scheduleFlush(id string, e *entry, at time.Time) {
	if e.stopFlush != nil && e.flushAt.Equal(at) {
		return
	}
	o.stopTimer(e)
	e.flushAt = at
	epoch := o.epoch
	e.stopFlush = o.sched.AfterFunc(at.Sub(o.sched.Now()), func() {
		cur, ok := o.tasks[id]
		if !ok || cur != e || o.epoch != epoch {
			return
		}
		e.stopFlush = nil
		o.apply(id, e, e.task.Flush(o.sched.Now(), o.window))
	})
}

func (o *Orchestrator) stopTimer(e *entry) {
	if e.stopFlush != nil {
		e.stopFlush()
		e.stopFlush = nil
	}
}

func (o *Orchestrator) request(e *entry, text string) translate.Request {
	return translate.Request{Text: text, SourceLang: e.src, TargetLang: o.settings.TargetLang}
}

func (o *Orchestrator) send(id string, e *entry, offer Offer) {
	req := o.request(e, offer.Text)
	epoch := o.epoch
	timeout := o.timeout

	slog.Debug("translation: request", "utterance_id", id, "final", offer.Final, "target", req.TargetLang)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "translation.translate", trace.WithAttributes(
			attribute.String("utterance_id", id),
			attribute.Bool("final", offer.Final),
			attribute.String("target_lang", req.TargetLang),
		))

		start := time.Now()
		res, err := o.translator.Translate(ctx, req)
		dur := time.Since(start)
		observe.EndSpan(span, err)

		o.sched.Post(func() {
			o.complete(id, e, epoch, Result{
				UtteranceID: id,
				Request:     req,
				Text:        res.Text,
				Final:       offer.Final,
				Err:         err,
				Duration:    dur,
			})
		})
	}()
}

func (o *Orchestrator) complete(id string, e *entry, epoch uint64, res Result) {
	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	o.metrics.RecordTranslation(context.Background(), status, res.Duration)

	// The task was reset or replaced while the request was in flight.
	if cur, ok := o.tasks[id]; !ok || cur != e || epoch != o.epoch {
		slog.Debug("translation: discarding stale response", "utterance_id", id)
		return
	}

	if res.Err != nil {
		slog.Warn("translation failed", "utterance_id", id, "final", res.Final, "err", res.Err)
		res.Text = ""
	} else {
		e.translated = res.Text
	}

	d := e.task.Complete(res.Err == nil, o.sched.Now(), o.window)
	// A newer final queued behind this one takes over the report.
	res.Final = res.Final && d.Action == ActionForget
	o.onResult(res)
	o.apply(id, e, d)
}

// SameLanguage reports whether two BCP-47 tags name the same language. Tags
// match case-insensitively with "_" read as "-", and a tag matches any tag
// that extends it with further subtags, so "en" and "en-US" are the same.
// Two tags that differ in a shared subtag position, such as "zh-Hans" and
// "zh-Hant" or "pt-BR" and "pt-PT", are different languages.
func SameLanguage(a, b string) bool {
	a, b = normalizeTag(a), normalizeTag(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b+"-") || strings.HasPrefix(b, a+"-")
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}
