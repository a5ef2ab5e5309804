package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dial(t *testing.T, srv *httptest.Server, meeting string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?meeting_id=" + meeting
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitConnections(t *testing.T, s *Server, meeting string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Connections(meeting) != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections(%s) = %d, want %d", meeting, s.Connections(meeting), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_BroadcastsWithinMeeting(t *testing.T) {
	t.Parallel()
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	a := dial(t, srv, "m1")
	b := dial(t, srv, "m1")
	c := dial(t, srv, "m2")
	waitConnections(t, s, "m1", 2)
	waitConnections(t, s, "m2", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte(`{"x":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	typ, msg, err := b.Read(ctx)
	if err != nil {
		t.Fatalf("b read: %v", err)
	}
	if typ != websocket.MessageText || string(msg) != `{"x":1}` {
		t.Errorf("b got %v %q", typ, msg)
	}

	// Neither the sender nor another meeting receives the message.
	for name, conn := range map[string]*websocket.Conn{"sender": a, "other meeting": c} {
		rctx, rcancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_, msg, err := conn.Read(rctx)
		rcancel()
		if err == nil {
			t.Errorf("%s unexpectedly received %q", name, msg)
		}
	}
}

func TestServer_MissingMeetingID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_LeaveRemovesPeer(t *testing.T) {
	t.Parallel()
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, srv, "m1")
	waitConnections(t, s, "m1", 1)
	conn.Close(websocket.StatusNormalClosure, "bye")
	waitConnections(t, s, "m1", 0)
}
