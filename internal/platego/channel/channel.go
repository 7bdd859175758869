// Package channel maintains the realtime socket connection to the rescue
// coordination server and dispatches its events.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

var ErrClosed = errors.New("channel closed")

// Handler receives the data portion of one event. Handlers for all events run
// on a single dispatch goroutine, in arrival order. Declared as an alias so
// consumers can accept handlers behind their own interfaces.
type Handler = func(data json.RawMessage)

type Options struct {
	// Reconnect re-dials with exponential backoff after the connection
	// drops. Off by default; a dropped connection then ends in StateClosed.
	Reconnect   bool
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// OnState observes transitions. Called from channel goroutines.
	OnState func(State)

	Dialer *websocket.Dialer
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// join is a recorded room membership, replayed on every transition into open.
type join struct {
	event   string
	payload any
}

type Channel struct {
	wsURL string
	opts  Options

	mu       sync.Mutex
	state    State
	handlers map[string]Handler
	joins    []join
	conn     *websocket.Conn

	send     chan []byte
	dispatch chan envelope
	done     chan struct{}
	once     sync.Once
}

// Connect dials the server's /ws endpoint and returns an open channel. A
// failed initial dial leaves the channel errored and returns the error.
func Connect(ctx context.Context, baseURL, token string, opts Options) (*Channel, error) {
	wsURL, err := socketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	ch := &Channel{
		wsURL:    wsURL,
		opts:     opts,
		state:    StateConnecting,
		handlers: map[string]Handler{},
		send:     make(chan []byte, 64),
		dispatch: make(chan envelope, 256),
		done:     make(chan struct{}),
	}

	conn, _, err := opts.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		ch.setState(StateErrored)
		return nil, err
	}

	go ch.dispatchLoop()
	go ch.writeLoop()
	ch.attach(conn)
	return ch, nil
}

// On registers the handler for an event. Exactly one handler per event;
// re-registration replaces the previous one.
func (c *Channel) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = handler
}

// Emit sends an event, fire-and-forget. Frames sent while the channel is not
// open are dropped.
func (c *Channel) Emit(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("channel: marshal %s: %v", event, err)
		return
	}
	frame, _ := json.Marshal(envelope{Event: event, Data: raw})

	c.mu.Lock()
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Channel) JoinUser(userID string) {
	c.recordJoin("joinUser", userID)
}

func (c *Channel) JoinAsVolunteer() {
	c.recordJoin("joinAsVolunteer", nil)
}

func (c *Channel) JoinRescue(rescueID string) {
	c.recordJoin("joinRescue", rescueID)
}

func (c *Channel) JoinChat(chatID string) {
	c.recordJoin("joinChat", chatID)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the connection down. Idempotent.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.setState(StateClosed)
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (c *Channel) recordJoin(event string, payload any) {
	c.mu.Lock()
	found := false
	for _, j := range c.joins {
		if j.event == event && j.payload == payload {
			found = true
			break
		}
	}
	if !found {
		c.joins = append(c.joins, join{event: event, payload: payload})
	}
	c.mu.Unlock()

	c.Emit(event, payload)
}

// attach adopts a live connection: marks the channel open, replays the
// recorded joins, and starts reading.
func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	joins := make([]join, len(c.joins))
	copy(joins, c.joins)
	c.mu.Unlock()

	if c.opts.OnState != nil {
		c.opts.OnState(StateOpen)
	}
	for _, j := range joins {
		c.Emit(j.event, j.payload)
	}

	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop()
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			continue
		}
		select {
		case c.dispatch <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) handleDrop() {
	select {
	case <-c.done:
		return
	default:
	}

	if !c.opts.Reconnect {
		c.Close()
		return
	}

	c.setState(StateConnecting)
	backoff := c.opts.BackoffBase
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, _, err := c.opts.Dialer.Dial(c.wsURL, nil)
		if err == nil {
			c.attach(conn)
			return
		}
		backoff *= 2
		if backoff > c.opts.BackoffMax {
			backoff = c.opts.BackoffMax
		}
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("channel: write: %v", err)
			}
		}
	}
}

// dispatchLoop is the single goroutine all handlers run on.
func (c *Channel) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.dispatch:
			c.mu.Lock()
			handler := c.handlers[env.Event]
			c.mu.Unlock()
			if handler != nil {
				handler(env.Data)
			}
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == StateClosed && s != StateClosed {
		c.mu.Unlock()
		return
	}
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func socketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
