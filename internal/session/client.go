package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client owns a single TLS WebSocket connection to the venue and the read
// loop that drains it. All inbound frames are delivered on Messages();
// transport failures on Errors(). The Session consumes both.
type Client struct {
	cfg    Config
	logger *slog.Logger

	messages chan []byte
	errors   chan error
	done     chan struct{}
	loopDone chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	loopStarted bool
	closed      bool
}

// NewClient creates a client for the configured endpoint. The connection is
// not established until Connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan []byte, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Connect dials the venue and starts the read loop. A malformed endpoint
// fails with ErrConnectionSetup and leaves the client Idle; a dial or TLS
// failure transitions to Failed. On success the client is Open and Connect
// returns with the read loop running.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: invalid endpoint %q", ErrConnectionSetup, c.cfg.URL)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.loopStarted = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Send writes a text frame to the connection. Fails with ErrNotOpen when the
// socket is not Open.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotOpen, c.state)
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close issues a graceful close if the socket is open, stops the read loop
// and waits for it to exit. Safe to call from any state; a second call is a
// no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := c.state == StateOpen
	if open {
		c.state = StateClosing
	}
	conn := c.conn
	started := c.loopStarted
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		if open {
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing connection"),
				time.Now().Add(time.Second),
			)
		}
		conn.Close()
	}

	if started {
		<-c.loopDone
	}

	c.mu.Lock()
	if c.state != StateFailed {
		c.state = StateClosed
	}
	c.mu.Unlock()

	return nil
}

// Messages returns the inbound frame channel.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Errors returns the transport error channel.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readLoop reads frames until the connection dies or Close is called.
func (c *Client) readLoop() {
	defer close(c.loopDone)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Errors caused by Close() are not failures.
			select {
			case <-c.done:
				return
			default:
			}

			c.mu.Lock()
			c.state = StateFailed
			c.mu.Unlock()

			select {
			case c.errors <- err:
			default:
			}
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}
