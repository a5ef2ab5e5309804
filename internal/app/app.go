// Package app wires the lingualink subsystems into a running process.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems for the configured mode, Run serves HTTP and drives the caption
// pipeline until the context ends, and Shutdown tears everything down in
// order.
//
// In listener mode the app runs one listener's caption pipeline: inbound
// fragments arrive over an [event.Channel], are buffered, translated and
// optionally spoken, and the local participant's own speech is transcribed
// and published back to the channel. In relay mode the app only serves the
// websocket fan-out used as that channel.
//
// For testing, inject doubles via functional options (WithHistory,
// WithChannel, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/internal/eventloop"
	"github.com/MrWong99/lingualink/internal/glossary"
	"github.com/MrWong99/lingualink/internal/health"
	"github.com/MrWong99/lingualink/internal/ingest"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/pipeline"
	"github.com/MrWong99/lingualink/internal/playback"
	"github.com/MrWong99/lingualink/internal/publish"
	"github.com/MrWong99/lingualink/internal/relay"
	"github.com/MrWong99/lingualink/internal/translation"
	"github.com/MrWong99/lingualink/internal/utterance"
	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/event"
	"github.com/MrWong99/lingualink/pkg/event/wsrelay"
	"github.com/MrWong99/lingualink/pkg/history"
	"github.com/MrWong99/lingualink/pkg/history/postgres"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
	"github.com/MrWong99/lingualink/pkg/provider/translate/cache"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

// shutdownGrace bounds the HTTP server drain when Run's context ends.
const shutdownGrace = 5 * time.Second

// captureFrame is the duration of one audio chunk sent to the recognizer.
const captureFrame = 20 * time.Millisecond

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by [BuildProviders].
type Providers struct {
	Translator translate.Translator
	TTS        tts.Provider
	STT        stt.Provider

	// STTName is stored with untranslated transcripts.
	STTName string
}

// App owns all subsystem lifetimes.
type App struct {
	mu        sync.Mutex
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar

	// Listener-mode subsystems. Nil in relay mode.
	loop      *eventloop.Loop
	queue     *playback.Queue
	pipe      *pipeline.Pipeline
	history   history.Recorder
	channel   event.Channel
	devices   *audio.Router
	output    audio.Device
	input     io.Reader

	// Relay-mode subsystem. Nil in listener mode.
	relay *relay.Server

	checkers []health.Checker
	handler  http.Handler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistory injects a history recorder instead of connecting to PostgreSQL.
func WithHistory(r history.Recorder) Option {
	return func(a *App) { a.history = r }
}

// WithChannel injects the event channel instead of dialing the relay.
func WithChannel(ch event.Channel) Option {
	return func(a *App) { a.channel = ch }
}

// WithAudioInput sets the raw PCM stream transcribed by the local publisher,
// overriding capture.input.
func WithAudioInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithOutputDevice sets the default playback device, overriding
// playback.output.
func WithOutputDevice(d audio.Device) Option {
	return func(a *App) { a.output = d }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the process logger so
// config reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App for cfg.Server.Mode. providers may be nil in relay mode.
//
// New performs all initialisation synchronously: database and cache
// connections, relay dial and pipeline assembly. Anything it opened is
// closed again if a later step fails.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if cfg.Server.Mode == config.ModeRelay {
		a.relay = relay.New(
			relay.WithOriginPatterns(cfg.Server.AllowedOrigins...),
			relay.WithMetrics(a.metrics),
		)
		a.handler = a.routes()
		return a, nil
	}

	if err := a.initListener(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	a.handler = a.routes()
	return a, nil
}

func (a *App) initListener(ctx context.Context) error {
	// ── 1. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Event channel ─────────────────────────────────────────────────
	if err := a.initChannel(ctx); err != nil {
		return fmt.Errorf("app: init event channel: %w", err)
	}

	// ── 3. Translator ────────────────────────────────────────────────────
	tr, err := a.initTranslator(ctx)
	if err != nil {
		return fmt.Errorf("app: init translator: %w", err)
	}

	// ── 4. Playback ──────────────────────────────────────────────────────
	if err := a.initPlayback(); err != nil {
		return fmt.Errorf("app: init playback: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	cfg := a.cfg
	a.loop = eventloop.New()
	a.closers = append(a.closers, a.loop.Close)
	a.pipe = pipeline.New(a.loop, tr, a.queue,
		pipeline.WithBuffer(utterance.NewBuffer(cfg.Captions.BufferSize)),
		pipeline.WithHistory(a.history),
		pipeline.WithIdentity(pipeline.Identity{
			MeetingID:   cfg.Session.MeetingID,
			UserID:      cfg.Session.LocalUserID,
			STTProvider: a.providers.STTName,
		}),
		pipeline.WithIngestOptions(
			ingest.WithThrottle(cfg.Captions.PartialThrottle),
			ingest.WithMaxTextLen(cfg.Captions.MaxTextLen),
			ingest.WithChunkTTL(cfg.Captions.ChunkTTL),
			ingest.WithMetrics(a.metrics),
		),
		pipeline.WithTranslationOptions(
			translation.WithDebounce(cfg.Translation.Debounce),
			translation.WithTimeout(cfg.Translation.Timeout),
			translation.WithTaskTTL(cfg.Translation.TaskTTL),
			translation.WithMetrics(a.metrics),
		),
	)
	a.pipe.ApplySettings(pipelineSettings(cfg))

	// ── 6. Audio capture ─────────────────────────────────────────────────
	if err := a.initCapture(); err != nil {
		return fmt.Errorf("app: init capture: %w", err)
	}
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory connects the PostgreSQL recorder unless one was injected.
// Without a DSN nothing is persisted. Any real recorder is wrapped in a
// [history.Guard] so write failures degrade readiness instead of failing.
func (a *App) initHistory(ctx context.Context) error {
	var ping func(context.Context) error
	if a.history == nil {
		dsn := a.cfg.History.PostgresDSN
		if dsn == "" {
			a.history = history.Nop{}
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		a.history, ping = store, store.Ping
		slog.Info("history store connected")
	}

	guard := history.NewGuard(a.history)
	a.history = guard
	a.checkers = append(a.checkers, health.Checker{Name: "history", Check: func(ctx context.Context) error {
		if err := guard.Check(ctx); err != nil {
			return err
		}
		if ping != nil {
			return ping(ctx)
		}
		return nil
	}})
	return nil
}

// initChannel dials the relay, or falls back to an in-process hub when no
// relay is configured. The hub only carries the local publisher's own
// fragments, which is useful for a single-machine setup.
func (a *App) initChannel(ctx context.Context) error {
	if a.channel != nil {
		return nil
	}
	if url := a.cfg.Event.RelayURL; url != "" {
		c, err := wsrelay.Dial(ctx, url, a.cfg.Session.MeetingID)
		if err != nil {
			return err
		}
		a.channel = c
		a.closers = append(a.closers, c.Close)
		a.checkers = append(a.checkers, health.Checker{Name: "relay", Check: func(context.Context) error {
			if !c.Connected() {
				return errors.New("not connected")
			}
			return nil
		}})
		slog.Info("event relay connected", "url", url, "meeting_id", a.cfg.Session.MeetingID)
		return nil
	}
	ep := event.NewHub(event.DefaultBuffer).Join()
	a.channel = ep
	a.closers = append(a.closers, ep.Close)
	slog.Info("no relay configured, using in-process event hub")
	return nil
}

// initTranslator decorates the configured translator with the result cache.
// Without a translator every request fails with [translate.ErrUnavailable],
// which the pipeline treats like any other translation failure.
func (a *App) initTranslator(ctx context.Context) (translate.Translator, error) {
	tr := a.providers.Translator
	if tr == nil {
		tr = translate.Func(func(context.Context, translate.Request) (translate.Result, error) {
			return translate.Result{}, translate.ErrUnavailable
		})
	}

	cc := a.cfg.Translation.Cache
	switch cc.Backend {
	case config.CacheMemory:
		return cache.New(tr, cache.NewMemory(cc.Size), cc.TTL), nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cc.Addr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		a.checkers = append(a.checkers, health.Checker{Name: "cache", Check: r.Ping})
		return cache.New(tr, r, cc.TTL), nil
	default:
		return tr, nil
	}
}

// initPlayback builds the output device and the speech queue.
func (a *App) initPlayback() error {
	pc := a.cfg.Playback
	out := a.output
	if out == nil {
		d, err := newOutputDevice(pc.Output)
		if err != nil {
			return err
		}
		out = d
	}
	a.devices = audio.NewRouter(out)
	a.closers = append(a.closers, a.devices.Close)

	synth := a.providers.TTS
	if synth == nil {
		synth = tts.Func(func(context.Context, tts.Request) (audio.Clip, error) {
			return audio.Clip{}, errors.New("no speech synthesizer configured")
		})
	}
	a.queue = playback.New(synth, a.devices,
		playback.WithCooldown(pc.Cooldown),
		playback.WithSlotTimeout(pc.SlotTimeout),
		playback.WithMetrics(a.metrics),
	)
	return nil
}

// newOutputDevice opens the configured PCM sink. Stdout and files are
// written at real-time pace so that Speaking reflects audible output.
func newOutputDevice(oc config.OutputConfig) (audio.Device, error) {
	switch oc.Kind {
	case config.OutputStdout:
		return audio.NewWriterDevice("stdout", nopCloser{os.Stdout}, audio.WithRealtime(true)), nil
	case config.OutputFile:
		f, err := os.Create(oc.Path)
		if err != nil {
			return nil, err
		}
		return audio.NewWriterDevice("file", f, audio.WithRealtime(true)), nil
	default:
		return audio.NewWriterDevice("discard", io.Discard), nil
	}
}

// initCapture opens the configured audio input. The recognizer session and
// publisher are started in Run.
func (a *App) initCapture() error {
	if a.providers.STT == nil {
		if a.input != nil {
			slog.Warn("audio input given but no recognizer configured; capture disabled")
		}
		return nil
	}
	if a.input != nil {
		return nil
	}
	switch in := a.cfg.Capture.Input; in {
	case "":
		slog.Info("capture.input is empty; local speech is not published")
	case "-":
		a.input = os.Stdin
	default:
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		a.input = f
		a.closers = append(a.closers, f.Close)
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the app's routes.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the caption pipeline, or nil in relay mode.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// Run serves HTTP on cfg.Server.ListenAddr and drives every background
// worker until ctx is cancelled or one of them fails. It returns ctx.Err()
// on cancellation.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config()
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.pipe != nil {
		a.runListener(gctx, g)
	}
	return waitErr(ctx, g.Wait())
}

// RunWorkers drives the listener's background workers without the HTTP
// server. It blocks like [App.Run].
func (a *App) RunWorkers(ctx context.Context) error {
	if a.pipe == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	a.runListener(gctx, g)
	return waitErr(ctx, g.Wait())
}

// waitErr reports ctx's error in place of the cancellation errors returned
// by workers that stopped because ctx ended.
func waitErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return cerr
	}
	return err
}

func (a *App) runListener(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error { return a.queue.Run(ctx) })
	g.Go(func() error {
		if err := a.pipe.Subscribe(ctx, a.channel); err != nil {
			return fmt.Errorf("app: subscribe: %w", err)
		}
		a.pipe.Start()
		<-ctx.Done()
		a.pipe.Stop()
		return nil
	})
	if a.input != nil && a.providers.STT != nil {
		g.Go(func() error { return a.capture(ctx) })
	}
	cfg := a.config()
	slog.Info("listener running",
		"meeting_id", cfg.Session.MeetingID,
		"user_id", cfg.Session.LocalUserID,
		"capture", a.input != nil,
	)
}

// capture streams the audio input into a recognizer session and publishes
// the resulting transcripts. Capture pauses while the listener's own speech
// output is active so that synthesized audio is not re-transcribed.
func (a *App) capture(ctx context.Context) error {
	cfg := a.config()
	cc := cfg.Capture
	sess, err := a.providers.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: cc.SampleRate,
		Channels:   cc.Channels,
		Language:   cc.Language,
	})
	if err != nil {
		slog.Error("failed to start recognizer session", "err", err)
		return nil
	}
	defer sess.Close()

	opts := []publish.Option{
		publish.WithCapture(func() bool { return !a.pipe.Speaking() }),
		publish.WithThrottle(cfg.Captions.PartialThrottle),
		publish.WithMaxTextLen(cfg.Captions.MaxTextLen),
		publish.WithLocalSink(a.pipe.IngestLocal),
		publish.WithMetrics(a.metrics),
	}
	if g := glossary.New(cc.Glossary); g.Len() > 0 {
		opts = append(opts, publish.WithCorrector(g.CorrectText))
	}
	pub := publish.New(a.channel, sess,
		publish.Identity{
			SpeakerID:   cfg.Session.LocalUserID,
			SpeakerName: cfg.Session.LocalUserName,
			Lang:        cc.Language,
		},
		opts...,
	)
	if err := pub.Start(ctx); err != nil {
		return fmt.Errorf("app: start publisher: %w", err)
	}
	defer pub.Stop()

	if c, ok := a.input.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	frame := cc.SampleRate * cc.Channels * 2 * int(captureFrame/time.Millisecond) / 1000
	if err := feed(ctx, a.input, sess, frame); err != nil {
		slog.Warn("audio capture stopped", "err", err)
		return nil
	}
	slog.Info("audio input ended")
	<-ctx.Done()
	return nil
}

// feed copies r into sess in frame-sized chunks until r is exhausted or ctx
// ends. A trailing partial chunk is sent as is.
func feed(ctx context.Context, r io.Reader, sess stt.SessionHandle, frame int) error {
	if frame <= 0 {
		frame = 640
	}
	buf := make([]byte, frame)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if serr := sess.SendAudio(chunk); serr != nil {
				return fmt.Errorf("send audio: %w", serr)
			}
		}
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return err
		}
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable differences between the running
// config and next. Sections that need a restart are logged and left alone.
func (a *App) ApplyConfig(next *config.Config) config.ConfigDiff {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := config.Diff(a.cfg, next)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if (d.TranslationChanged || d.PlaybackChanged) && a.pipe != nil {
		a.pipe.ApplySettings(pipelineSettings(next))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that require a restart", "sections", d.RestartRequired)
	}

	// Keep the restart-only sections as they are running.
	live := *a.cfg
	live.Server.LogLevel = next.Server.LogLevel
	live.Translation.AutoTranslate = next.Translation.AutoTranslate
	live.Translation.SourceLang = next.Translation.SourceLang
	live.Translation.TargetLang = next.Translation.TargetLang
	live.Playback.Enabled = next.Playback.Enabled
	live.Playback.Voice = next.Playback.Voice
	live.Playback.Volume = next.Playback.Volume
	live.Playback.Device = next.Playback.Device
	live.Playback.MutedSpeakers = next.Playback.MutedSpeakers
	a.cfg = &live
	return d
}

// Config returns the running configuration.
func (a *App) Config() *config.Config { return a.config() }

func (a *App) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// pipelineSettings extracts the hot-reloadable listener settings from cfg.
func pipelineSettings(cfg *config.Config) pipeline.Settings {
	vol := config.DefaultVolume
	if cfg.Playback.Volume != nil {
		vol = *cfg.Playback.Volume
	}
	return pipeline.Settings{
		AutoTranslate:   cfg.Translation.AutoTranslate,
		SourceLang:      cfg.Translation.SourceLang,
		TargetLang:      cfg.Translation.TargetLang,
		PlaybackEnabled: cfg.Playback.Enabled,
		Voice:           cfg.Playback.Voice,
		Volume:          vol,
		Device:          cfg.Playback.Device,
		MutedSpeakers:   cfg.Playback.MutedSpeakers,
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs every closer registered so far, ignoring errors. Used when
// New fails halfway.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// nopCloser keeps the process's stdout open when the device is closed.
type nopCloser struct{ io.Writer }
