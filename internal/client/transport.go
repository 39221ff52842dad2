package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/frame"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
	StatusExhausted    Status = "exhausted"
)

// Handler receives each decoded inbound frame, synchronously in arrival
// order. A single handler is active at a time; the last registration wins.
type Handler func(f frame.Frame)

// StatusHandler observes status transitions. It is invoked outside the
// transport's lock, so it may call back into the transport.
type StatusHandler func(status Status)

type Options struct {
	URL              string
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

const (
	defaultInitialBackoff   = time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultMaxAttempts      = 5
	defaultHandshakeTimeout = 10 * time.Second

	writeTimeout = 10 * time.Second
)

// Transport maintains a single connection to the notification service and
// recovers from unexpected closure with bounded exponential backoff. The
// application observes failures only through status transitions; push
// delivery is a latency optimization, never a source of truth, so the caller
// falls back to its request/response path while disconnected.
type Transport struct {
	logger           *zap.Logger
	dialer           *websocket.Dialer
	url              string
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	maxAttempts      int
	handshakeTimeout time.Duration

	mu             sync.Mutex
	status         Status
	token          string
	conn           *websocket.Conn
	attempts       int
	generation     int
	reconnectTimer *time.Timer
	handler        Handler
	statusHandler  StatusHandler

	// writeMu serializes data writes on the current connection; t.mu is
	// never held across a network write.
	writeMu sync.Mutex
}

func NewTransport(opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	initialBackoff := opts.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}

	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	return &Transport{
		logger:           logger,
		dialer:           websocket.DefaultDialer,
		url:              opts.URL,
		initialBackoff:   initialBackoff,
		maxBackoff:       maxBackoff,
		maxAttempts:      maxAttempts,
		handshakeTimeout: handshakeTimeout,
		status:           StatusIdle,
	}
}

// Connect establishes the connection using the given token and stores it for
// reconnection attempts. Calling it while a connection for the same token is
// open or being established is a no-op; any other state starts fresh.
func (t *Transport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()

	if (t.status == StatusOpen || t.status == StatusConnecting) && t.token == token {
		t.mu.Unlock()

		return nil
	}

	t.teardownLocked()
	t.generation++
	t.token = token
	t.attempts = 0
	notify := t.setStatusLocked(StatusConnecting)
	generation := t.generation

	t.mu.Unlock()
	notify()

	return t.dial(ctx, generation)
}

// SetOnMessage replaces the inbound frame handler.
func (t *Transport) SetOnMessage(handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// SetOnStatusChange replaces the status transition observer. Like the frame
// handler, the last registration wins.
func (t *Transport) SetOnStatusChange(handler StatusHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusHandler = handler
}

// Send transmits a payload to the service. Outside the open state the
// payload is dropped, matching the registry's best-effort contract.
func (t *Transport) Send(payload any) {
	t.mu.Lock()
	status := t.status
	conn := t.conn
	t.mu.Unlock()

	if status != StatusOpen || conn == nil {
		t.logger.Warn("dropping outbound message, transport not open",
			zap.String("status", string(status)))

		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	if err := conn.WriteJSON(payload); err != nil {
		t.logger.Warn("failed to write message", zap.Error(err))
	}
}

// Disconnect closes the connection and cancels any pending reconnect timer,
// returning to idle. Safe to call from any state, any number of times.
func (t *Transport) Disconnect() {
	t.mu.Lock()

	t.teardownLocked()
	t.generation++
	notify := t.setStatusLocked(StatusIdle)
	t.attempts = 0

	t.mu.Unlock()
	notify()
}

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.attempts
}

// setStatusLocked records a transition and returns the observer invocation,
// which callers run after releasing t.mu. Callers hold t.mu.
func (t *Transport) setStatusLocked(status Status) func() {
	if t.status == status {
		return func() {}
	}

	t.status = status

	handler := t.statusHandler
	if handler == nil {
		return func() {}
	}

	return func() {
		handler(status)
	}
}

// teardownLocked closes the channel and cancels the reconnect timer on every
// exit path, leaving no dangling timers. Callers hold t.mu.
func (t *Transport) teardownLocked() {
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}

	if t.conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) dial(ctx context.Context, generation int) error {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.dialURL(token), nil)

	t.mu.Lock()

	if generation != t.generation {
		t.mu.Unlock()

		// Superseded by an explicit disconnect or a newer connect.
		if err == nil {
			conn.Close()
		}

		return nil
	}

	if err != nil {
		t.logger.Warn("connection attempt failed", zap.Error(err))

		notify := t.scheduleReconnectLocked()
		t.mu.Unlock()
		notify()

		return err
	}

	t.conn = conn
	notify := t.setStatusLocked(StatusOpen)
	t.attempts = 0

	t.logger.Info("connected to notification service")

	go t.readLoop(conn, generation)

	t.mu.Unlock()
	notify()

	return nil
}

func (t *Transport) dialURL(token string) string {
	u, err := url.Parse(t.url)
	if err != nil {
		return t.url
	}

	query := u.Query()
	query.Set("token", token)
	u.RawQuery = query.Encode()

	return u.String()
}

func (t *Transport) readLoop(conn *websocket.Conn, generation int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.handleClosed(conn, generation, err)

			return
		}

		f, err := frame.Decode(raw)
		if err != nil {
			t.logger.Warn("dropping malformed frame", zap.Error(err))

			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()

		if handler != nil {
			handler(f)
		}
	}
}

func (t *Transport) handleClosed(conn *websocket.Conn, generation int, err error) {
	conn.Close()

	t.mu.Lock()

	if generation != t.generation || t.conn != conn {
		t.mu.Unlock()

		// Explicit disconnect or a newer connection already took over.
		return
	}

	t.conn = nil

	t.logger.Warn("connection closed unexpectedly", zap.Error(err))

	notify := t.scheduleReconnectLocked()
	t.mu.Unlock()
	notify()
}

// scheduleReconnectLocked arms the reconnect timer for the next attempt, or
// transitions to exhausted once the attempt bound is reached. Callers hold
// t.mu and run the returned observer invocation after releasing it.
func (t *Transport) scheduleReconnectLocked() func() {
	if t.attempts >= t.maxAttempts {
		notify := t.setStatusLocked(StatusExhausted)

		t.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", t.attempts))

		return notify
	}

	t.attempts++
	delay := nextDelay(t.initialBackoff, t.maxBackoff, t.attempts)
	notify := t.setStatusLocked(StatusReconnecting)
	generation := t.generation

	t.logger.Info("scheduling reconnect",
		zap.Int("attempt", t.attempts),
		zap.Duration("delay", delay))

	t.reconnectTimer = time.AfterFunc(delay, func() {
		t.retry(generation)
	})

	return notify
}

func (t *Transport) retry(generation int) {
	t.mu.Lock()

	if generation != t.generation || t.status != StatusReconnecting {
		t.mu.Unlock()

		return
	}

	t.reconnectTimer = nil
	notify := t.setStatusLocked(StatusConnecting)

	t.mu.Unlock()
	notify()

	ctx, cancel := context.WithTimeout(context.Background(), t.handshakeTimeout)
	defer cancel()

	t.dial(ctx, generation)
}

// nextDelay returns the delay before the given attempt: the initial interval
// doubled per prior attempt, capped at max.
func nextDelay(initial, max time.Duration, attempt int) time.Duration {
	delay := initial

	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}

	if delay > max {
		return max
	}

	return delay
}
