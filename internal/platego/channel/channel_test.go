package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []envelope
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) frames() []envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope, len(s.received))
	copy(out, s.received)
	return out
}

func (s *wsServer) waitFrame(t *testing.T, event string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, env := range s.frames() {
			if env.Event == event {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("frame %q never arrived; got %+v", event, s.frames())
}

func TestConnectOpensAndJoins(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	if ch.State() != StateOpen {
		t.Fatalf("expected open, got %v", ch.State())
	}

	ch.JoinUser("user-1")
	ch.JoinRescue("abc123")
	srv.waitFrame(t, "joinUser")
	srv.waitFrame(t, "joinRescue")
}

func TestConnectFailureErrors(t *testing.T) {
	if _, err := Connect(context.Background(), "http://127.0.0.1:1", "tok", Options{}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestHandlersRunInArrivalOrder(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	ch.On("rescueLocation", func(data json.RawMessage) {
		var p struct {
			Seq string `json:"seq"`
		}
		_ = json.Unmarshal(data, &p)
		mu.Lock()
		got = append(got, p.Seq)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	conn := <-srv.conns
	for _, seq := range []string{"a", "b", "c"} {
		frame, _ := json.Marshal(map[string]any{"event": "rescueLocation", "data": map[string]string{"seq": seq}})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handlers never ran; got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("out of order: %v", got)
	}
}

func TestOnReplacesHandler(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	firstRan := make(chan struct{}, 1)
	secondRan := make(chan struct{}, 1)
	ch.On("ping", func(json.RawMessage) { firstRan <- struct{}{} })
	ch.On("ping", func(json.RawMessage) { secondRan <- struct{}{} })

	conn := <-srv.conns
	frame, _ := json.Marshal(map[string]any{"event": "ping"})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case <-secondRan:
	case <-time.After(2 * time.Second):
		t.Fatalf("replacement handler never ran")
	}
	select {
	case <-firstRan:
		t.Fatalf("replaced handler still ran")
	default:
	}
}

func TestDropWithoutReconnectCloses(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	conn := <-srv.conns
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.State() == StateClosed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected closed, got %v", ch.State())
}

func TestReconnectReplaysJoins(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{
		Reconnect:   true,
		BackoffBase: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	ch.JoinRescue("abc123")
	srv.waitFrame(t, "joinRescue")

	conn := <-srv.conns
	conn.Close()

	// A second connection must arrive and see the join replayed.
	select {
	case <-srv.conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("no reconnect attempt")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count := 0
		for _, env := range srv.frames() {
			if env.Event == "joinRescue" {
				count++
			}
		}
		if count >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("join not replayed after reconnect: %+v", srv.frames())
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ch.Close()
	ch.Close()
	if ch.State() != StateClosed {
		t.Fatalf("expected closed")
	}
}

func TestEmitDroppedWhenNotOpen(t *testing.T) {
	srv := newWSServer(t)

	ch, err := Connect(context.Background(), srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ch.Close()
	ch.Emit("typing", map[string]string{"chatId": "c1"})
	time.Sleep(20 * time.Millisecond)
	for _, env := range srv.frames() {
		if env.Event == "typing" {
			t.Fatalf("frame sent after close")
		}
	}
}
