package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/pkg/caption"
	"github.com/MrWong99/lingualink/pkg/event"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingualink/pkg/provider/stt/mock"
)

type harness struct {
	sess *sttmock.Session
	pub  *Publisher
	recv <-chan []byte
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	hub := event.NewHub(0)
	local, remote := hub.Join(), hub.Join()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	recv, err := remote.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var n atomic.Int32
	sess := &sttmock.Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
	base := []Option{
		WithIDGenerator(func() string { return fmt.Sprintf("u%d", n.Add(1)) }),
		WithClock(func() time.Time { return time.UnixMilli(1000) }),
	}
	pub := New(local, sess, Identity{SpeakerID: "me", SpeakerName: "Me", Lang: "en"}, append(base, opts...)...)
	if err := pub.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(pub.Stop)
	return &harness{sess: sess, pub: pub, recv: recv}
}

func (h *harness) next(t *testing.T) caption.Event {
	t.Helper()
	select {
	case p := <-h.recv:
		e, err := caption.Decode(p)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if err := e.Validate(0); err != nil {
			t.Fatalf("published invalid event: %v", err)
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return caption.Event{}
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-h.recv:
		t.Fatalf("unexpected event %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisher_UtteranceLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithThrottle(0))

	h.sess.PartialsCh <- stt.Transcript{Text: "hel"}
	e := h.next(t)
	if e.Type != caption.TypePartial || e.UtteranceID != "u1" || e.Text != "hel" {
		t.Errorf("partial = %+v", e)
	}
	if e.SpeakerUserID != "me" || e.SpeakerName != "Me" || e.SourceLang != "en" || e.TS != 1000 {
		t.Errorf("identity fields = %+v", e)
	}

	h.sess.FinalsCh <- stt.Transcript{Text: "hello there", Language: "en-GB"}
	e = h.next(t)
	if e.Type != caption.TypeFinal || e.UtteranceID != "u1" || e.SourceLang != "en-GB" {
		t.Errorf("final = %+v", e)
	}

	h.sess.PartialsCh <- stt.Transcript{Text: "next"}
	if e := h.next(t); e.UtteranceID != "u2" {
		t.Errorf("new utterance id = %q, want u2", e.UtteranceID)
	}
}

func TestPublisher_ThrottlesPartials(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithThrottle(time.Hour))

	h.sess.PartialsCh <- stt.Transcript{Text: "a"}
	h.next(t)
	h.sess.PartialsCh <- stt.Transcript{Text: "a b"}
	h.none(t)

	h.sess.FinalsCh <- stt.Transcript{Text: "a b c"}
	if e := h.next(t); e.Type != caption.TypeFinal || e.Text != "a b c" {
		t.Errorf("final should bypass throttle, got %+v", e)
	}
}

func TestPublisher_CapturePredicate(t *testing.T) {
	t.Parallel()
	var speaking atomic.Bool
	speaking.Store(true)
	h := newHarness(t, WithThrottle(0), WithCapture(func() bool { return !speaking.Load() }))

	h.sess.PartialsCh <- stt.Transcript{Text: "echo"}
	h.none(t)
	h.sess.FinalsCh <- stt.Transcript{Text: "echo of my own voice"}
	h.none(t)

	speaking.Store(false)
	h.sess.FinalsCh <- stt.Transcript{Text: "real speech"}
	e := h.next(t)
	if e.Text != "real speech" || e.UtteranceID != "u1" {
		t.Errorf("got %+v", e)
	}
}

func TestPublisher_Corrector(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithThrottle(0), WithCorrector(func(s string) string {
		return strings.ReplaceAll(s, "alise", "Alice")
	}))

	h.sess.FinalsCh <- stt.Transcript{Text: "thanks alise"}
	if e := h.next(t); e.Text != "thanks Alice" {
		t.Errorf("text = %q, want corrected", e.Text)
	}
}

func TestPublisher_SkipsBlankText(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithThrottle(0))
	h.sess.PartialsCh <- stt.Transcript{Text: "   "}
	h.none(t)
}

func TestPublisher_SplitsLongText(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var local []caption.Fragment
	h := newHarness(t, WithThrottle(0), WithMaxTextLen(10), WithLocalSink(func(f caption.Fragment) {
		mu.Lock()
		local = append(local, f)
		mu.Unlock()
	}))

	text := strings.Repeat("x", 15)
	h.sess.FinalsCh <- stt.Transcript{Text: text}
	first, second := h.next(t), h.next(t)
	if first.ChunkCount != 2 || second.ChunkCount != 2 {
		t.Fatalf("chunk counts = %d, %d", first.ChunkCount, second.ChunkCount)
	}
	if first.ChunkIndex != 0 || second.ChunkIndex != 1 || first.Text+second.Text != text {
		t.Errorf("chunks = %+v / %+v", first, second)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(local) != 1 || local[0].Text != text {
		t.Errorf("local sink = %+v, want one unsplit fragment", local)
	}
}

func TestPublisher_StartStop(t *testing.T) {
	t.Parallel()
	hub := event.NewHub(0)
	sess := &sttmock.Session{PartialsCh: make(chan stt.Transcript), FinalsCh: make(chan stt.Transcript)}
	p := New(hub.Join(), sess, Identity{SpeakerID: "me"})

	p.Stop() // before Start
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start = %v, want ErrStarted", err)
	}
	p.Stop()
	p.Stop()
}

func TestPublisher_ExitsWhenSessionEnds(t *testing.T) {
	t.Parallel()
	hub := event.NewHub(0)
	sess := &sttmock.Session{
		PartialsCh:    make(chan stt.Transcript),
		FinalsCh:      make(chan stt.Transcript),
		CloseChannels: true,
	}
	p := New(hub.Join(), sess, Identity{SpeakerID: "me"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = sess.Close()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
