// Package event defines the low-latency broadcast channel that carries
// caption events between call participants.
//
// A [Channel] delivers opaque payloads published by one participant to every
// other participant of the same meeting. Delivery is best-effort and
// unordered across publishers; receivers must tolerate loss, duplication and
// reordering.
//
// Two implementations ship with this module: [Hub] (in-process, used in tests
// and for loopback) and the websocket client in package wsrelay.
package event

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event: channel closed")

// Channel is a meeting-scoped broadcast channel.
type Channel interface {
	// Publish sends payload to every other participant. It never delivers
	// the payload back to the publishing endpoint.
	Publish(ctx context.Context, payload []byte) error

	// Subscribe returns a channel of payloads published by other
	// participants. The returned channel is closed when ctx is cancelled or
	// the Channel is closed.
	Subscribe(ctx context.Context) (<-chan []byte, error)

	// Close releases the endpoint. Calling Close more than once is safe.
	Close() error
}

// DefaultBuffer is the per-subscriber queue length of a [Hub] endpoint.
const DefaultBuffer = 256

// Hub is an in-memory broadcast bus. Endpoints created by [Hub.Join] see each
// other's payloads but never their own. Slow subscribers lose payloads
// instead of blocking publishers.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	buffer int
}

type subscriber struct {
	owner uint64
	ch    chan []byte
}

// NewHub returns an empty hub. buffer <= 0 selects [DefaultBuffer].
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Join returns a new endpoint on the hub.
func (h *Hub) Join() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return &Endpoint{hub: h, id: h.nextID}
}

func (h *Hub) publish(from uint64, payload []byte) (delivered int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.owner == from {
			continue
		}
		cp := append([]byte(nil), payload...)
		select {
		case s.ch <- cp:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) subscribe(owner uint64) (uint64, chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan []byte, h.buffer)
	h.subs[h.nextID] = &subscriber{owner: owner, ch: ch}
	return h.nextID, ch
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Endpoint is one participant's view of a [Hub]. It implements [Channel].
type Endpoint struct {
	hub *Hub
	id  uint64

	mu     sync.Mutex
	closed bool
	subs   []uint64
}

var _ Channel = (*Endpoint)(nil)

// Publish implements [Channel].
func (e *Endpoint) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.hub.publish(e.id, payload)
	return nil
}

// Subscribe implements [Channel].
func (e *Endpoint) Subscribe(ctx context.Context) (<-chan []byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	id, ch := e.hub.subscribe(e.id)
	e.subs = append(e.subs, id)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.hub.unsubscribe(id)
	}()
	return ch, nil
}

// Close implements [Channel]. It closes every subscription of the endpoint.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, id := range subs {
		e.hub.unsubscribe(id)
	}
	return nil
}
