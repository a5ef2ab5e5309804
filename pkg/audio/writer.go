package audio

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

var _ Device = (*WriterDevice)(nil)

// writeChunk is the playing time written per pacing step.
const writeChunk = 20 * time.Millisecond

// WriterOption configures a [WriterDevice].
type WriterOption func(*WriterDevice)

// WithFormat sets the PCM format clips are converted to before writing.
// The default is 16 kHz mono.
func WithFormat(f Format) WriterOption {
	return func(d *WriterDevice) { d.conv = &Converter{Target: f} }
}

// WithRealtime makes the device pace writes at the clip's playing speed so
// that a track stays open for as long as the audio would take to hear.
// Enabled by default.
func WithRealtime(on bool) WriterOption {
	return func(d *WriterDevice) { d.realtime = on }
}

// WriterDevice plays clips by writing them to an [io.Writer]: a pipe into a
// system player, a raw PCM file, or [io.Discard]. PCM and WAV clips are
// converted to the device format and scaled by volume; other encodings are
// written as-is.
type WriterDevice struct {
	id       string
	w        io.Writer
	conv     *Converter
	realtime bool

	mu     sync.Mutex
	closed bool
	active *writerTrack
}

// NewWriterDevice returns a device named id that writes to w. If w is also
// an [io.Closer] it is closed by [WriterDevice.Close].
func NewWriterDevice(id string, w io.Writer, opts ...WriterOption) *WriterDevice {
	d := &WriterDevice{
		id:       id,
		w:        w,
		conv:     &Converter{Target: Format{Encoding: EncodingPCM, SampleRate: 16000, Channels: 1}},
		realtime: true,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ID returns the device id.
func (d *WriterDevice) ID() string { return d.id }

// Play starts writing clip on a new goroutine.
func (d *WriterDevice) Play(clip Clip, volume float64) (Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if d.active != nil {
		d.active.Stop()
	}

	data := clip.Data
	var pace time.Duration
	if pcm, ok := d.conv.Convert(clip); ok {
		data = ApplyGain(pcm.Data, volume)
		pace = pcm.Duration()
	}

	t := &writerTrack{done: make(chan struct{}), stop: make(chan struct{})}
	d.active = t
	go d.write(t, data, pace)
	return t, nil
}

func (d *WriterDevice) write(t *writerTrack, data []byte, total time.Duration) {
	defer close(t.done)

	if !d.realtime || total <= 0 || len(data) == 0 {
		if _, err := d.w.Write(data); err != nil {
			t.err = err
		}
		return
	}

	steps := int(total / writeChunk)
	if steps < 1 {
		steps = 1
	}
	step := (len(data) / steps) &^ 1
	if step == 0 {
		step = len(data)
	}

	ticker := time.NewTicker(writeChunk)
	defer ticker.Stop()
	for off := 0; off < len(data); off += step {
		end := min(off+step, len(data))
		if _, err := d.w.Write(data[off:end]); err != nil {
			t.err = err
			return
		}
		select {
		case <-ticker.C:
		case <-t.stop:
			return
		}
	}
}

// Close stops the active track and closes the underlying writer if it is
// closable.
func (d *WriterDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	active := d.active
	d.active = nil
	d.mu.Unlock()

	if active != nil {
		active.Stop()
		<-active.done
	}
	if c, ok := d.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("audio: closing writer device", "device", d.id, "err", err)
			return err
		}
	}
	return nil
}

type writerTrack struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	err      error
}

func (t *writerTrack) Done() <-chan struct{} { return t.done }

func (t *writerTrack) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *writerTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
