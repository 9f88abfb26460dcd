package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/metric"
	"github.com/dan246/ff14-tw-market/pkg/retry"
)

// Status represents the state of the feed connection.
type Status int32

// Possible connection statuses
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusClosing
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Conn is the subset of the websocket connection the client uses.
// *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes feed connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production dialer backed by gorilla/websocket.
type wsDialer struct {
	handshakeTimeout time.Duration
}

func (d *wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// Client maintains at most one live connection to the feed, reconnecting
// automatically with a jittered fixed delay. Transient network errors never
// surface to the caller of Start.
type Client struct {
	url        string
	dialer     Dialer
	dispatcher *Dispatcher
	subs       *SubscriptionSet

	logger  *slog.Logger
	metrics *metric.Metrics

	reconnectWait    time.Duration
	pingInterval     time.Duration
	handshakeTimeout time.Duration

	onConnect    func()
	onDisconnect func(error)

	status atomic.Int32

	mu      sync.Mutex // guards conn, started, stop, done
	conn    Conn
	started bool
	stop    chan struct{}
	done    chan struct{}

	writeMu sync.Mutex // serializes data writes (gorilla single-writer rule)
}

// NewClient creates a feed client for the given URL. The dispatcher receives
// every decoded frame.
func NewClient(url string, dispatcher *Dispatcher, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "feed URL")
	}
	if dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient", "nil dispatcher")
	}

	c := &Client{
		url:              url,
		dispatcher:       dispatcher,
		subs:             NewSubscriptionSet(),
		logger:           slog.Default(),
		reconnectWait:    5 * time.Second,
		pingInterval:     30 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.dialer == nil {
		c.dialer = &wsDialer{handshakeTimeout: c.handshakeTimeout}
	}

	c.setStatus(StatusDisconnected)
	return c, nil
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return Status(c.status.Load())
}

func (c *Client) setStatus(s Status) {
	c.status.Store(int32(s))
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(float64(s))
	}
}

// Subscriptions returns the durable subscription state.
func (c *Client) Subscriptions() *SubscriptionSet {
	return c.subs
}

// Recent drains up to limit of the buffered recent events, oldest first.
func (c *Client) Recent(limit int) []Frame {
	return c.dispatcher.Recent(limit)
}

// Start spawns the connection loop. Idempotent: if the loop is already
// running this is a no-op. Connection failures are retried indefinitely and
// never surface here.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(ctx, c.stop, c.done)
	return nil
}

// Stop requests the connection loop to exit and waits up to timeout for a
// clean close. The socket is closed out of band to unblock the read. Safe
// to call when already stopped.
func (c *Client) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	close(c.stop)
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	c.setStatus(StatusClosing)
	if conn != nil {
		_ = conn.Close()
	}

	select {
	case <-done:
		c.setStatus(StatusDisconnected)
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Stop", "await loop exit")
	}
}

// Subscribe adds a topic to the durable state and, when connected, sends
// the subscribe request immediately. Subscribing twice has the same effect
// as once. A send failure keeps the topic for replay on the next connection.
func (c *Client) Subscribe(t Topic) error {
	if t == "" {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "Client", "Subscribe", "empty topic")
	}
	if !c.subs.Add(t) {
		return nil
	}
	if c.Status() != StatusConnected {
		return nil // sent on replay
	}
	if err := c.sendEvent("subscribe", t); err != nil {
		c.logger.Warn("subscribe send failed, topic retained for replay",
			"channel", string(t), "error", err)
	}
	return nil
}

// Unsubscribe removes a topic from the durable state and, when connected,
// tells the feed to stop delivering it.
func (c *Client) Unsubscribe(t Topic) error {
	if t == "" {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "Client", "Unsubscribe", "empty topic")
	}
	if !c.subs.Remove(t) {
		return nil
	}
	if c.Status() != StatusConnected {
		return nil
	}
	if err := c.sendEvent("unsubscribe", t); err != nil {
		c.logger.Warn("unsubscribe send failed", "channel", string(t), "error", err)
	}
	return nil
}

// run is the connection loop: dial, replay subscriptions, read frames until
// the socket closes, back off, repeat. Exactly one run loop exists per
// started client.
func (c *Client) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	defer c.setStatus(StatusDisconnected)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setStatus(StatusConnecting)
		conn, err := c.dialer.DialContext(ctx, c.url)
		if err != nil {
			c.setStatus(StatusDisconnected)
			c.logger.Warn("feed dial failed", "url", c.url, "error", err)
			if c.metrics != nil {
				c.metrics.Reconnects.Inc()
			}
			if !c.waitBackoff(ctx, stop) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		stopped := false
		select {
		case <-stop:
			stopped = true
		default:
		}
		c.mu.Unlock()
		if stopped {
			// Stop raced the dial; it saw no conn to close, so close here.
			_ = conn.Close()
			return
		}
		c.setStatus(StatusConnected)
		c.logger.Info("feed connected", "url", c.url, "subscriptions", c.subs.Len())

		if c.onConnect != nil {
			c.onConnect()
		}
		c.replaySubscriptions()

		readErr := c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.setStatus(StatusDisconnected)

		if c.onDisconnect != nil {
			c.onDisconnect(readErr)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.logger.Info("feed connection closed, reconnecting",
			"error", readErr, "wait", c.reconnectWait)
		if c.metrics != nil {
			c.metrics.Reconnects.Inc()
		}
		if !c.waitBackoff(ctx, stop) {
			return
		}
	}
}

// waitBackoff sleeps for the jittered reconnect delay. Returns false if the
// client was stopped or the context cancelled during the wait.
func (c *Client) waitBackoff(ctx context.Context, stop chan struct{}) bool {
	timer := time.NewTimer(retry.Jitter(c.reconnectWait))
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// replaySubscriptions re-sends the full subscription snapshot on a new
// connection. Send failures are logged; the topic stays in the set and is
// retried on the next reconnect.
func (c *Client) replaySubscriptions() {
	for _, t := range c.subs.Snapshot() {
		if err := c.sendEvent("subscribe", t); err != nil {
			c.logger.Warn("subscription replay failed", "channel", string(t), "error", err)
		}
	}
}

// readLoop reads and dispatches frames until the connection fails. A frame
// that fails to decode is dropped; only transport errors end the loop.
func (c *Client) readLoop(conn Conn) error {
	stopPing := make(chan struct{})
	defer close(stopPing)

	if c.pingInterval > 0 {
		readTimeout := c.pingInterval + c.pingInterval/2
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		go c.pingLoop(conn, stopPing)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.WrapTransient(
				fmt.Errorf("%v: %w", err, errors.ErrConnectionLost),
				"Client", "readLoop", "read frame")
		}

		frame, err := DecodeFrame(data, time.Now())
		if err != nil {
			if c.metrics != nil {
				c.metrics.FramesDropped.WithLabelValues("decode_error").Inc()
			}
			c.logger.Warn("dropping undecodable frame", "bytes", len(data), "error", err)
			continue
		}

		c.dispatcher.Dispatch(frame)
	}
}

// pingLoop sends keep-alive pings until the connection's read loop returns.
// WriteControl is safe to call concurrently with WriteMessage.
func (c *Client) pingLoop(conn Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// sendEvent encodes and writes one subscribe/unsubscribe request.
func (c *Client) sendEvent(event string, t Topic) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "Client", "sendEvent", event)
	}

	payload, err := EncodeSubscription(event, t)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrSubscribeFailed),
			"Client", "sendEvent", event)
	}

	if c.metrics != nil {
		c.metrics.SubscribesSent.WithLabelValues(event).Inc()
	}
	return nil
}
