// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The device records every Play call. Tracks stay open until the test ends
// them with [Device.Finish] or [Track.Stop], unless AutoFinish is set. Set
// PlayErr to make the next calls fail, e.g. with [audio.ErrPlaybackBlocked].
//
// Typical usage:
//
//	dev := &mock.Device{DeviceID: "speakers"}
//	tr, _ := dev.Play(clip, 0.75)
//	dev.Finish()
//	<-tr.Done()
package mock

import (
	"sync"

	"github.com/MrWong99/lingualink/pkg/audio"
)

var (
	_ audio.Device = (*Device)(nil)
	_ audio.Track  = (*Track)(nil)
)

// PlayCall records the arguments of a single [Device.Play] invocation.
type PlayCall struct {
	Clip   audio.Clip
	Volume float64
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// DeviceID is returned by ID.
	DeviceID string

	// PlayErr, if non-nil, is returned by Play instead of starting a track.
	PlayErr error

	// AutoFinish ends every track immediately after it starts.
	AutoFinish bool

	// PlayCalls records every successful and failed Play invocation.
	PlayCalls []PlayCall

	// Tracks holds the tracks started by Play in order.
	Tracks []*Track

	// CallCountClose records how many times Close was called.
	CallCountClose int

	started chan struct{}
}

// ID implements [audio.Device].
func (d *Device) ID() string { return d.DeviceID }

// Play implements [audio.Device].
func (d *Device) Play(clip audio.Clip, volume float64) (audio.Track, error) {
	d.mu.Lock()
	d.PlayCalls = append(d.PlayCalls, PlayCall{Clip: clip, Volume: volume})
	if d.PlayErr != nil {
		err := d.PlayErr
		d.mu.Unlock()
		d.signal()
		return nil, err
	}
	t := &Track{done: make(chan struct{})}
	d.Tracks = append(d.Tracks, t)
	auto := d.AutoFinish
	d.mu.Unlock()

	if auto {
		t.end(nil)
	}
	d.signal()
	return t, nil
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}

// SetPlayErr replaces PlayErr under the device lock.
func (d *Device) SetPlayErr(err error) {
	d.mu.Lock()
	d.PlayErr = err
	d.mu.Unlock()
}

// Played returns a copy of the recorded Play calls.
func (d *Device) Played() []PlayCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PlayCall(nil), d.PlayCalls...)
}

// StartedTracks returns a copy of the tracks started so far.
func (d *Device) StartedTracks() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.Tracks...)
}

// Started returns a channel that receives a value after every Play call.
// The channel is buffered; tests can use it to wait for the worker.
func (d *Device) Started() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started == nil {
		d.started = make(chan struct{}, 64)
	}
	return d.started
}

// Finish ends the most recent track as if the clip had played to the end.
func (d *Device) Finish() {
	d.FinishWith(nil)
}

// FinishWith ends the most recent track with err.
func (d *Device) FinishWith(err error) {
	d.mu.Lock()
	var t *Track
	if n := len(d.Tracks); n > 0 {
		t = d.Tracks[n-1]
	}
	d.mu.Unlock()
	if t != nil {
		t.end(err)
	}
}

func (d *Device) signal() {
	d.mu.Lock()
	ch := d.started
	d.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Track is a mock implementation of [audio.Track].
type Track struct {
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
	err     error
	stopped bool
}

// Done implements [audio.Track].
func (t *Track) Done() <-chan struct{} { return t.done }

// Err implements [audio.Track].
func (t *Track) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Stop implements [audio.Track].
func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.end(nil)
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Track) end(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}
