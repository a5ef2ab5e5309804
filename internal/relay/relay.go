// Package relay implements the fragment relay: a websocket broadcast server
// that stands in for the host session's generic broadcast facility.
//
// Clients connect to GET /ws?meeting_id=<id>. Every text message received on
// one connection is forwarded to every other connection of the same meeting.
// Each connection has a bounded outbound queue; when it is full, messages for
// that connection are dropped rather than stalling the sender.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingualink/internal/observe"
)

const (
	defaultQueueSize    = 256
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 5 * time.Second
)

// Option configures a [Server].
type Option func(*Server)

// WithOriginPatterns sets the allowed browser origins. Without patterns only
// same-origin browser clients are accepted; non-browser clients are always
// accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithQueueSize sets the per-connection outbound queue length.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithMetrics sets the metrics used to count live connections.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is an http.Handler that relays messages between connections of
// the same meeting.
type Server struct {
	origins   []string
	queueSize int
	metrics   *observe.Metrics

	mu       sync.Mutex
	meetings map[string]map[*peer]struct{}
}

var _ http.Handler = (*Server)(nil)

type peer struct {
	meeting string
	out     chan []byte
}

// New returns a relay server.
func New(opts ...Option) *Server {
	s := &Server{
		queueSize: defaultQueueSize,
		metrics:   observe.DefaultMetrics(),
		meetings:  make(map[string]map[*peer]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP upgrades the request and relays until either side disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	meeting := r.URL.Query().Get("meeting_id")
	if meeting == "" {
		http.Error(w, "meeting_id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("relay: accept failed", "meeting_id", meeting, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(defaultReadLimit)

	p := &peer{meeting: meeting, out: make(chan []byte, s.queueSize)}
	s.join(p)
	defer s.leave(p)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.writeLoop(ctx, cancel, conn, p)

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("relay: read ended", "meeting_id", meeting, "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.broadcast(p, msg)
	}
}

// Connections returns the number of live connections for meeting.
func (s *Server) Connections(meeting string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meetings[meeting])
}

func (s *Server) join(p *peer) {
	s.mu.Lock()
	set, ok := s.meetings[p.meeting]
	if !ok {
		set = make(map[*peer]struct{})
		s.meetings[p.meeting] = set
	}
	set[p] = struct{}{}
	n := len(set)
	s.mu.Unlock()

	s.metrics.RelayConnected(context.Background(), 1)
	slog.Info("relay: peer joined", "meeting_id", p.meeting, "peers", n)
}

func (s *Server) leave(p *peer) {
	s.mu.Lock()
	set := s.meetings[p.meeting]
	delete(set, p)
	if len(set) == 0 {
		delete(s.meetings, p.meeting)
	}
	s.mu.Unlock()

	s.metrics.RelayConnected(context.Background(), -1)
	slog.Info("relay: peer left", "meeting_id", p.meeting)
}

func (s *Server) broadcast(from *peer, msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.meetings[from.meeting] {
		if p == from {
			continue
		}
		select {
		case p.out <- msg:
		default:
			slog.Debug("relay: peer queue full, dropping message", "meeting_id", p.meeting)
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, p *peer) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.out:
			wctx, wcancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}
