// Package wsrelay implements [event.Channel] on top of a websocket
// connection to a fragment relay server.
//
// The relay broadcasts every text message from one connection to the other
// connections of the same meeting. The client keeps a single connection,
// fans inbound messages out to every subscription and redials with
// exponential backoff when the connection drops. Payloads published while
// disconnected fail with an error; callers treat the channel as best-effort.
package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingualink/pkg/event"
)

const (
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
	defaultReadLimit  = 1 << 20
	subBuffer         = 256
)

var errNotConnected = errors.New("wsrelay: not connected")

var _ event.Channel = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithBackoff sets the redial backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithDialOptions sets the options passed to websocket.Dial, e.g. headers.
func WithDialOptions(o *websocket.DialOptions) Option {
	return func(c *Client) {
		c.dialOpts = o
	}
}

// Client is a websocket relay endpoint.
type Client struct {
	url        string
	dialOpts   *websocket.DialOptions
	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[int]chan []byte
	nextID int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the relay at base (e.g. "ws://host:8080/ws") for the given
// meeting. The first connection must succeed; later drops are redialled in
// the background until Close.
func Dial(ctx context.Context, base, meetingID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: parse url: %w", err)
	}
	q := u.Query()
	q.Set("meeting_id", meetingID)
	u.RawQuery = q.Encode()

	c := &Client{
		url:        u.String(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		subs:       make(map[int]chan []byte),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go c.receiveLoop(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: dial: %w", err)
	}
	conn.SetReadLimit(defaultReadLimit)
	return conn, nil
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Publish implements [event.Channel].
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return event.ErrClosed
	}
	if conn == nil {
		return errNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("wsrelay: publish: %w", err)
	}
	return nil
}

// Subscribe implements [event.Channel].
func (c *Client) Subscribe(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, event.ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan []byte, subBuffer)
	c.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.unsubscribe(id)
	}()
	return ch, nil
}

func (c *Client) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// Close implements [event.Channel].
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	<-c.done
	return nil
}

// receiveLoop reads from conn until it fails, then redials. It exits when
// the client is closed.
func (c *Client) receiveLoop(conn *websocket.Conn) {
	defer close(c.done)
	backoff := c.minBackoff

	for {
		c.read(conn)
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.CloseNow()

		for {
			slog.Warn("wsrelay: connection lost, redialing", "url", c.url, "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := c.dial(c.ctx)
			if err == nil {
				conn = next
				break
			}
			backoff = min(backoff*2, c.maxBackoff)
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.CloseNow()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		backoff = c.minBackoff
		slog.Info("wsrelay: reconnected", "url", c.url)
	}
}

func (c *Client) read(conn *websocket.Conn) {
	for {
		typ, msg, err := conn.Read(c.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.fanOut(msg)
	}
}

func (c *Client) fanOut(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
