package session

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/asrivas/deribit-console/internal/rpc"
)

// Registry tracks subscribed channels and deduplicates push payloads. Each
// channel keeps the canonical serialization of the last payload forwarded;
// a push identical to that baseline is dropped. A push for a channel that is
// not in the map is treated as already unsubscribed and dropped silently,
// which also covers the race where the venue streams past an unsubscribe.
type Registry struct {
	logger   *slog.Logger
	handlers *Handlers
	send     func([]byte) error

	mu   sync.Mutex
	last map[string]string // channel -> canonical baseline
}

// NewRegistry creates a registry sending wire requests through send.
func NewRegistry(send func([]byte) error, h *Handlers, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		handlers: h,
		send:     send,
		last:     make(map[string]string),
	}
}

// Subscribe sends a subscribe request and installs an empty dedup baseline.
// Re-subscribing resets the baseline, so the next push is always forwarded.
// The baseline is installed even when the send fails; the venue never
// confirmed the original either way.
func (r *Registry) Subscribe(channel string) error {
	err := r.send(rpc.Subscribe(channel))
	if err != nil {
		r.logger.Warn("subscribe request failed", "channel", channel, "error", err)
	}

	r.mu.Lock()
	r.last[channel] = ""
	r.mu.Unlock()

	return err
}

// Unsubscribe sends an unsubscribe request and removes the channel. Any push
// arriving afterwards is dropped.
func (r *Registry) Unsubscribe(channel string) error {
	err := r.send(rpc.Unsubscribe(channel))
	if err != nil {
		r.logger.Warn("unsubscribe request failed", "channel", channel, "error", err)
	}

	r.mu.Lock()
	delete(r.last, channel)
	r.mu.Unlock()

	return err
}

// Subscribed reports whether the channel is currently tracked.
func (r *Registry) Subscribed(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.last[channel]
	return ok
}

// Channels returns the tracked channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.last))
	for ch := range r.last {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// pushParams is the params object of a subscription notification. The
// channel is either a plain string or an object carrying a name field.
type pushParams struct {
	Channel json.RawMessage `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// HandlePush processes the params of an inbound subscription notification.
func (r *Registry) HandlePush(params json.RawMessage) {
	var p pushParams
	if err := json.Unmarshal(params, &p); err != nil {
		r.logger.Warn("malformed subscription params", "error", err)
		return
	}

	channel, ok := channelName(p.Channel)
	if !ok {
		r.logger.Warn("invalid channel format in subscription message")
		return
	}

	if len(p.Data) == 0 {
		r.logger.Warn("subscription message without data", "channel", channel)
		return
	}

	canonical, err := canonicalize(p.Data)
	if err != nil {
		r.logger.Warn("malformed subscription data", "channel", channel, "error", err)
		return
	}

	r.mu.Lock()
	baseline, subscribed := r.last[channel]
	if subscribed && canonical != baseline {
		r.last[channel] = canonical
	}
	r.mu.Unlock()

	if !subscribed {
		r.logger.Debug("push for unsubscribed channel dropped", "channel", channel)
		return
	}
	if canonical == baseline {
		return
	}

	r.dispatch(channel, p.Data)
}

// dispatch forwards changed data to the category handler chosen by substring
// match on the channel name.
func (r *Registry) dispatch(channel string, data json.RawMessage) {
	kind := payloadKind(data)

	switch {
	case strings.Contains(channel, "ticker"):
		if kind == kindArray {
			r.logger.Warn("unexpected array payload on ticker channel", "channel", channel)
			return
		}
		callPush(r.handlers.Ticker, channel, data)
	case strings.Contains(channel, "trades"):
		if kind != kindArray {
			r.logger.Warn("expected array payload on trades channel", "channel", channel)
			return
		}
		callPush(r.handlers.Trades, channel, data)
	case strings.Contains(channel, "book"):
		if kind != kindObject {
			r.logger.Warn("expected object payload on book channel", "channel", channel)
			return
		}
		callPush(r.handlers.Book, channel, data)
	default:
		callPush(r.handlers.Generic, channel, data)
	}
}

func callPush(h func(string, json.RawMessage), channel string, data json.RawMessage) {
	if h != nil {
		h(channel, data)
	}
}

// channelName extracts the channel from its string or {name: string} form.
func channelName(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var obj struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != nil {
		return *obj.Name, true
	}

	return "", false
}

// canonicalize produces a normalized serialization used purely for equality
// comparison: decode then re-encode, which sorts object keys.
func canonicalize(data json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type jsonKind int

const (
	kindPrimitive jsonKind = iota
	kindObject
	kindArray
)

func payloadKind(raw json.RawMessage) jsonKind {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return kindObject
		case '[':
			return kindArray
		default:
			return kindPrimitive
		}
	}
	return kindPrimitive
}
