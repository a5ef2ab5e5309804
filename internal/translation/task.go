package translation

import "time"

// Offer is one candidate text for translation.
type Offer struct {
	Text  string
	Final bool
}

// Action tells the orchestrator what to do after a [Task] transition.
type Action int

const (
	// ActionIgnore means there is nothing to do.
	ActionIgnore Action = iota

	// ActionSend means Decision.Offer must be sent to the translator now.
	ActionSend

	// ActionDebounce means the offer was stored as pending and a flush must
	// run at Decision.FlushAt.
	ActionDebounce

	// ActionWait means the offer was stored as pending behind the request in
	// flight; completion will pick it up.
	ActionWait

	// ActionForget means the utterance is final and fully handled; the task
	// must be deleted.
	ActionForget
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionDebounce:
		return "debounce"
	case ActionWait:
		return "wait"
	case ActionForget:
		return "forget"
	default:
		return "ignore"
	}
}

// Decision is the outcome of a [Task] transition.
type Decision struct {
	Action  Action
	Offer   Offer
	FlushAt time.Time

	// Settled is set with ActionForget when a final offer matched the text
	// already translated, so no further request will report on it.
	Settled bool
}

// State is the coarse state of a [Task].
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateInFlight:
		return "in_flight"
	default:
		return "idle"
	}
}

// Task is the per-utterance translation state. Its methods are pure
// transitions over the struct fields and the supplied clock values; they
// never perform I/O. At most one request is in flight per task.
type Task struct {
	// LastTranslated is the most recent text translated successfully.
	LastTranslated string

	// LastSent is the text of the most recent request.
	LastSent string
	sentFinal bool

	// LastAttemptAt is when the last request was sent. A new task starts with
	// its creation time so that the first partial is debounced too.
	LastAttemptAt time.Time

	InFlight bool
	Pending  *Offer

	// Final is set once a final offer has been accepted.
	Final bool

	// Touched is the time of the latest transition, used for TTL sweeps.
	Touched time.Time
}

// NewTask returns a task created at now.
func NewTask(now time.Time) *Task {
	return &Task{LastAttemptAt: now, Touched: now}
}

// State reports the coarse state of t.
func (t *Task) State() State {
	switch {
	case t.InFlight:
		return StateInFlight
	case t.Pending != nil:
		return StateDebouncing
	default:
		return StateIdle
	}
}

// Offer applies an incoming fragment text. window is the debounce window.
func (t *Task) Offer(o Offer, now time.Time, window time.Duration) Decision {
	t.Touched = now

	if o.Text == t.LastTranslated {
		if !o.Final {
			if t.Pending != nil && !t.Pending.Final {
				t.Pending = nil
			}
			return Decision{Action: ActionIgnore}
		}
		t.Final = true
		if !t.InFlight {
			t.Pending = nil
			return Decision{Action: ActionForget, Settled: true}
		}
		t.Pending = &o
		return Decision{Action: ActionWait}
	}

	// A partial never supersedes a final.
	if !o.Final && (t.Final || (t.Pending != nil && t.Pending.Final)) {
		return Decision{Action: ActionIgnore}
	}
	if o.Final {
		t.Final = true
	}

	if t.InFlight {
		t.Pending = &o
		return Decision{Action: ActionWait}
	}

	if !o.Final {
		if flushAt := t.LastAttemptAt.Add(window); now.Before(flushAt) {
			t.Pending = &o
			return Decision{Action: ActionDebounce, Offer: o, FlushAt: flushAt}
		}
	}

	return t.send(o, now)
}

// Flush sends the pending offer once the debounce window has passed.
func (t *Task) Flush(now time.Time, window time.Duration) Decision {
	if t.InFlight {
		return Decision{Action: ActionWait}
	}
	if t.Pending == nil {
		return Decision{Action: ActionIgnore}
	}
	p := *t.Pending
	if flushAt := t.LastAttemptAt.Add(window); !p.Final && now.Before(flushAt) {
		return Decision{Action: ActionDebounce, Offer: p, FlushAt: flushAt}
	}
	t.Touched = now
	return t.send(p, now)
}

// Complete records the outcome of the request in flight and decides what
// comes next. Pending work that differs from the text just sent is offered
// again under the usual rules.
func (t *Task) Complete(ok bool, now time.Time, window time.Duration) Decision {
	t.InFlight = false
	t.Touched = now
	if ok {
		t.LastTranslated = t.LastSent
	}

	if p := t.Pending; p != nil {
		t.Pending = nil
		if p.Text != t.LastSent || (p.Final && !t.sentFinal) {
			return t.Offer(*p, now, window)
		}
	}

	if t.sentFinal {
		return Decision{Action: ActionForget}
	}
	return Decision{Action: ActionIgnore}
}

// FinalText returns the final text of the utterance once a final offer has
// been accepted.
func (t *Task) FinalText() (string, bool) {
	if !t.Final {
		return "", false
	}
	if t.Pending != nil && t.Pending.Final {
		return t.Pending.Text, true
	}
	return t.LastSent, true
}

func (t *Task) send(o Offer, now time.Time) Decision {
	t.InFlight = true
	t.LastAttemptAt = now
	t.LastSent = o.Text
	t.sentFinal = o.Final
	t.Pending = nil
	return Decision{Action: ActionSend, Offer: o}
}
