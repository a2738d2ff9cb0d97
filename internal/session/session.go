package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Session is a single authenticated duplex session with the venue. One
// event-loop goroutine drains the connection and owns all dispatch; the
// foreground issues Connect, Send, Subscribe, Unsubscribe and Close, and
// waits on state predicates (WaitAuthenticated, AwaitReply).
//
// At most one outstanding RPC reply is tracked: Send sets a single awaiting
// bit, and any reply clears it. Callers that need the reply content consume
// it through their registered handler.
type Session struct {
	cfg      Config
	logger   *slog.Logger
	handlers Handlers

	client   *Client
	router   *replyRouter
	registry *Registry

	authFn func() ([]byte, error)

	mu            sync.Mutex
	cond          *sync.Cond
	authenticated bool
	accessToken   string
	awaiting      bool
	closed        bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a session. Handlers may be partially populated; nil handlers
// drop their traffic.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		client:   NewClient(cfg, logger),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.router = newReplyRouter(cfg.LegacyRouting, &s.handlers, s.setToken, logger)
	s.registry = NewRegistry(s.sendSubscription, &s.handlers, logger)
	return s
}

// OnAuthRequest registers the callback that produces the signed
// authentication request body. It fires exactly once, on the Open
// transition, if set before Connect.
func (s *Session) OnAuthRequest(fn func() ([]byte, error)) {
	s.authFn = fn
}

// Connect establishes the connection and starts the event loop. A malformed
// endpoint fails with ErrConnectionSetup without starting anything.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.eventLoop()
	return nil
}

// Send transmits an encoded request body and marks the session as awaiting
// one reply. The body is treated as opaque beyond its JSON-RPC id.
func (s *Session) Send(body []byte) error {
	s.mu.Lock()
	s.awaiting = true
	s.mu.Unlock()

	if err := s.client.Send(body); err != nil {
		s.mu.Lock()
		s.awaiting = false
		s.cond.Broadcast()
		s.mu.Unlock()

		s.logger.Error("send failed", "error", err)
		return err
	}
	return nil
}

// SendExpect sends a request and records the reply kind for its id, so
// tagged routing can deliver the reply deterministically. Equivalent to
// Send under legacy routing.
func (s *Session) SendExpect(body []byte, kind ReplyKind) error {
	if id := requestID(body); id != 0 {
		s.router.Expect(id, kind)
	}
	return s.Send(body)
}

// AwaitReply blocks until the outstanding reply arrives, the session closes,
// or ctx is done.
func (s *Session) AwaitReply(ctx context.Context) error {
	return s.wait(ctx, func() bool { return !s.awaiting })
}

// WaitAuthenticated blocks until authentication completes, the session
// closes, or ctx is done. No handshake timeout exists beyond the caller's
// context.
func (s *Session) WaitAuthenticated(ctx context.Context) error {
	return s.wait(ctx, func() bool { return s.authenticated })
}

// wait blocks on the condition variable until pred holds. pred is evaluated
// with s.mu held.
func (s *Session) wait(ctx context.Context, pred func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for !pred() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed {
			return ErrClosed
		}
		s.cond.Wait()
	}
	return nil
}

// Subscribe subscribes to a push channel.
func (s *Session) Subscribe(channel string) error {
	return s.registry.Subscribe(channel)
}

// Unsubscribe unsubscribes from a push channel.
func (s *Session) Unsubscribe(channel string) error {
	return s.registry.Unsubscribe(channel)
}

// Subscribed reports whether a channel is currently tracked.
func (s *Session) Subscribed(channel string) bool {
	return s.registry.Subscribed(channel)
}

// Channels returns the tracked channel names.
func (s *Session) Channels() []string {
	return s.registry.Channels()
}

// Authenticated reports whether an access token has been received.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// AccessToken returns the last access token received, or "".
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// State returns the connection state.
func (s *Session) State() State {
	return s.client.State()
}

// Close tears the session down: graceful socket close, event loop joined,
// waiters released. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	err := s.client.Close()
	s.wg.Wait()

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()

	return err
}

// sendSubscription is the registry's send path: subscription requests are
// tagged but do not set the awaiting bit, since no caller blocks on them.
func (s *Session) sendSubscription(body []byte) error {
	if id := requestID(body); id != 0 {
		s.router.Expect(id, ReplySubscription)
	}
	return s.client.Send(body)
}

// eventLoop fires the auth callback and then dispatches inbound traffic
// until Close. It is the only goroutine that mutates routing state.
func (s *Session) eventLoop() {
	defer s.wg.Done()

	if s.authFn != nil {
		body, err := s.authFn()
		if err != nil {
			s.logger.Error("auth request callback failed", "error", err)
		} else {
			if id := requestID(body); id != 0 {
				s.router.Expect(id, ReplyAuth)
			}
			if err := s.client.Send(body); err != nil {
				s.logger.Error("failed to send auth request", "error", err)
			}
		}
	}

	for {
		select {
		case <-s.done:
			return
		case err := <-s.client.Errors():
			s.logger.Warn("connection failed", "error", err)
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case data := <-s.client.Messages():
			s.handleMessage(data)
		}
	}
}

// inboundEnvelope distinguishes push notifications from RPC replies.
type inboundEnvelope struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// handleMessage classifies one inbound frame. Malformed frames are dropped;
// the connection stays open.
func (s *Session) handleMessage(data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("malformed inbound message dropped", "error", err)
		return
	}

	switch {
	case env.Method == "subscription":
		s.registry.HandlePush(env.Params)

	case len(env.Result) > 0 && string(env.Result) != "null":
		s.replyArrived()
		s.router.Route(env.ID, env.Result)

	case len(env.Error) > 0:
		s.replyArrived()
		msg := "Unknown error"
		var remote struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &remote) == nil && remote.Message != "" {
			msg = remote.Message
		}
		s.logger.Warn("remote error", "message", msg)
		if s.handlers.RemoteError != nil {
			s.handlers.RemoteError(msg)
		}

	default:
		s.logger.Debug("unclassifiable inbound message dropped")
	}
}

// replyArrived clears the awaiting bit. Any reply counts, matching or not.
func (s *Session) replyArrived() {
	s.mu.Lock()
	s.awaiting = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// setToken stores the access token and marks the session authenticated.
// Later auth replies overwrite the token.
func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.authenticated = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
