package session

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrConnectionSetup  = errors.New("connection setup failed")
	ErrNotOpen          = errors.New("connection not open")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("session closed")
)

// State is the lifecycle state of the venue connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReplyKind identifies which handler an outbound request expects its reply to
// reach. Recorded per request id when tagged routing is enabled.
type ReplyKind int

const (
	ReplyAuth ReplyKind = iota + 1
	ReplyAccountSummary
	ReplyBuyOrder
	ReplyCancelOrder
	ReplyOrderBook
	ReplyModifyOrder
	ReplyPositions
	ReplySubscription
)

// Handlers holds the callbacks a Session dispatches inbound traffic to.
// Nil handlers are skipped.
type Handlers struct {
	// RPC reply handlers.
	Auth           func(result json.RawMessage)
	AccountSummary func(result json.RawMessage)
	BuyOrder       func(order json.RawMessage)
	CancelOrder    func(result json.RawMessage)
	ModifyOrder    func(result json.RawMessage)
	OrderBook      func(result json.RawMessage)
	Positions      func(result json.RawMessage)

	// RemoteError receives the message of a reply carrying an error object.
	// It is never correlated back to the request that caused it.
	RemoteError func(message string)

	// Push notification handlers, selected by channel name category.
	Ticker  func(channel string, data json.RawMessage)
	Trades  func(channel string, data json.RawMessage)
	Book    func(channel string, data json.RawMessage)
	Generic func(channel string, data json.RawMessage)
}

// Config configures a Session.
type Config struct {
	// URL is the venue WebSocket endpoint (wss://...).
	URL string

	// LegacyRouting selects shape-based reply routing. In that mode a
	// modify-order reply is indistinguishable from a cancel reply and is
	// delivered to the cancel handler. When false, replies are routed by
	// the request id recorded at send time.
	LegacyRouting bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BufferSize       int // message channel buffer size
}

// DefaultConfig returns sensible defaults for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 1000
	}
}

// requestEnvelope is used to extract the id from an outbound request body.
type requestEnvelope struct {
	ID int64 `json:"id"`
}

// requestID extracts the JSON-RPC id from a serialized request body.
// Returns 0 when the body carries no usable id.
func requestID(body []byte) int64 {
	var env requestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0
	}
	return env.ID
}
