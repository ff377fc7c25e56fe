// Package transport owns the duplex event channel to the chat service.
//
// A Client keeps at most one websocket connection. Frames are JSON envelopes
// ({"event": name, "data": payload}) read by a single goroutine and handed
// to handlers in arrival order. When the connection drops the client redials
// with capped exponential backoff; registered handlers stay in place.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/adamavenir/parley/internal/metrics"
	"github.com/adamavenir/parley/internal/types"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

// Lifecycle events emitted locally by the client. Their data is null.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventReconnectFailed = "reconnect_failed"
)

const (
	defaultAttempts  = 5
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 5 * time.Second
	writeTimeout     = 10 * time.Second
)

// ErrNoEndpoint is returned by Connect when no URL is configured.
var ErrNoEndpoint = errors.New("transport endpoint not configured")

// Envelope is the wire format of one event frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw data of an event.
type Handler func(data json.RawMessage)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. wss://chat.example.com/socket.
	URL   string
	Token string
	// Attempts bounds reconnect attempts after a drop.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    *websocket.Dialer
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

type handlerEntry struct {
	id int
	fn Handler
}

// session lives from Connect until Disconnect or exhausted reconnects.
type session struct {
	userID string
	done   chan struct{}
	once   sync.Once
}

func (s *session) stop() { s.once.Do(func() { close(s.done) }) }

func (s *session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Client is the transport adapter.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	session *session
	writeMu sync.Mutex

	hmu      sync.RWMutex
	handlers map[string][]handlerEntry
	nextID   int
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "transport").Logger(),
		handlers: make(map[string][]handlerEntry),
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// UserID returns the identity of the current session, if any.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.userID
}

// Connect opens the connection for userID and announces presence. It is a
// no-op while a session is active, including while reconnecting.
func (c *Client) Connect(ctx context.Context, userID string) error {
	if c.opts.URL == "" {
		return ErrNoEndpoint
	}
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}
	sess := &session{userID: userID, done: make(chan struct{})}
	c.session = sess
	c.mu.Unlock()

	conn, err := c.dial(ctx, userID)
	if err != nil {
		c.mu.Lock()
		if c.session == sess {
			c.session = nil
		}
		c.mu.Unlock()
		return err
	}
	if !c.attach(sess, conn) {
		_ = conn.Close()
		return nil
	}
	go c.run(sess, conn)
	return nil
}

// Disconnect closes the connection, stops reconnecting, and clears the
// session identity. It is safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sess := c.session
	conn := c.conn
	c.session = nil
	c.conn = nil
	c.mu.Unlock()

	if sess != nil {
		sess.stop()
	}
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
	c.opts.Metrics.SetConnected(false)
	c.log.Info().Msg("disconnected")
	c.emit(EventDisconnect, nil)
}

// Send writes one event. Without a connection the event is logged and
// dropped; callers must tolerate lost sends.
func (c *Client) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode envelope")
		return
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Warn().Str("event", event).Msg("not connected, dropping event")
		c.opts.Metrics.EventDropped(event)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("send failed")
		c.opts.Metrics.EventDropped(event)
		return
	}
	c.opts.Metrics.EventSent(event)
}

// On registers handler for event and returns a func that removes it.
// Handlers for one event run in registration order.
func (c *Client) On(event string, handler Handler) func() {
	c.hmu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: handler})
	c.hmu.Unlock()

	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		entries := c.handlers[event]
		for i, entry := range entries {
			if entry.id == id {
				c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) emit(event string, data json.RawMessage) {
	c.hmu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[event]...)
	c.hmu.RUnlock()
	for _, entry := range entries {
		entry.fn(data)
	}
}

func (c *Client) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("userId", userID)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// attach installs conn for sess and announces presence. It reports false if
// the session ended while dialing.
func (c *Client) attach(sess *session, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.session != sess || sess.stopped() {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	c.opts.Metrics.SetConnected(true)
	c.log.Info().Str("user_id", sess.userID).Msg("connected")
	c.Send(types.EventUserOnline, types.OnlinePayload{UserID: sess.userID})
	c.emit(EventConnect, nil)
	return true
}

func (c *Client) detach(sess *session, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess || c.conn != conn {
		return false
	}
	c.conn = nil
	return true
}

func (c *Client) run(sess *session, conn *websocket.Conn) {
	for {
		err := c.readLoop(conn)
		_ = conn.Close()
		if sess.stopped() || !c.detach(sess, conn) {
			return
		}
		c.opts.Metrics.SetConnected(false)
		c.log.Warn().Err(err).Msg("connection lost")
		c.emit(EventDisconnect, nil)

		next, ok := c.reconnect(sess)
		if !ok {
			return
		}
		conn = next
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.opts.Metrics.EventReceived(env.Event)
		c.emit(env.Event, env.Data)
	}
}

func (c *Client) reconnect(sess *session) (*websocket.Conn, bool) {
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		delay := c.backoff(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-sess.done:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.MaxDelay+writeTimeout)
		conn, err := c.dial(ctx, sess.userID)
		cancel()
		if err != nil {
			c.opts.Metrics.Reconnect(false)
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect failed")
			continue
		}
		c.opts.Metrics.Reconnect(true)
		if !c.attach(sess, conn) {
			_ = conn.Close()
			return nil, false
		}
		return conn, true
	}

	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()
	sess.stop()
	c.log.Error().Int("attempts", c.opts.Attempts).Msg("giving up reconnecting")
	c.emit(EventReconnectFailed, nil)
	return nil, false
}

// backoff doubles from BaseDelay per attempt and never exceeds MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxDelay {
			return c.opts.MaxDelay
		}
	}
	if delay > c.opts.MaxDelay {
		return c.opts.MaxDelay
	}
	return delay
}
