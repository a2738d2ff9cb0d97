package session

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// replyRouter delivers RPC replies to handlers. The venue echoes the request
// id but carries no other request context, so two routing modes exist:
//
//   - legacy: the shape of result is sniffed against a fixed precedence
//     chain. A modify-order reply carries order_id and is therefore always
//     captured by the cancel rule; the modify handler is unreachable.
//   - tagged: the expected ReplyKind is recorded per request id at send
//     time and the reply is routed by id lookup.
type replyRouter struct {
	legacy   bool
	logger   *slog.Logger
	handlers *Handlers

	// onAuth fires whenever a reply's result carries an access_token,
	// regardless of routing mode.
	onAuth func(token string)

	mu       sync.Mutex
	expected map[int64]ReplyKind
}

func newReplyRouter(legacy bool, h *Handlers, onAuth func(string), logger *slog.Logger) *replyRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &replyRouter{
		legacy:   legacy,
		logger:   logger,
		handlers: h,
		onAuth:   onAuth,
		expected: make(map[int64]ReplyKind),
	}
}

// Expect records the reply kind for an outbound request id. No-op in legacy
// mode.
func (r *replyRouter) Expect(id int64, kind ReplyKind) {
	if r.legacy || id == 0 {
		return
	}
	r.mu.Lock()
	r.expected[id] = kind
	r.mu.Unlock()
}

// Route dispatches a reply's result to exactly one handler, or drops it.
func (r *replyRouter) Route(id int64, result json.RawMessage) {
	fields, isObj := decodeObject(result)

	if isObj {
		if tok, ok := stringField(fields, "access_token"); ok {
			r.onAuth(tok)
		}
	}

	if r.legacy {
		r.routeByShape(fields, isObj, result)
		return
	}

	r.mu.Lock()
	kind, ok := r.expected[id]
	if ok {
		delete(r.expected, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("reply with unknown id dropped", "id", id)
		return
	}
	r.routeByKind(kind, fields, result)
}

// routeByShape applies the fixed precedence chain: first matching predicate
// wins, otherwise the reply is dropped.
func (r *replyRouter) routeByShape(fields map[string]json.RawMessage, isObj bool, result json.RawMessage) {
	switch {
	case isObj && hasField(fields, "access_token"):
		call(r.handlers.Auth, result)
	case isObj && hasField(fields, "balance"):
		call(r.handlers.AccountSummary, result)
	case isObj && hasField(fields, "order"):
		call(r.handlers.BuyOrder, fields["order"])
	case isObj && hasField(fields, "order_id"):
		// Also captures modify-order replies; see replyRouter doc.
		call(r.handlers.CancelOrder, result)
	case isObj && hasField(fields, "bids") && hasField(fields, "asks"):
		call(r.handlers.OrderBook, result)
	case !isObj && isArray(result):
		call(r.handlers.Positions, result)
	default:
		r.logger.Debug("unroutable reply dropped")
	}
}

func (r *replyRouter) routeByKind(kind ReplyKind, fields map[string]json.RawMessage, result json.RawMessage) {
	switch kind {
	case ReplyAuth:
		call(r.handlers.Auth, result)
	case ReplyAccountSummary:
		call(r.handlers.AccountSummary, result)
	case ReplyBuyOrder:
		if order, ok := fields["order"]; ok {
			call(r.handlers.BuyOrder, order)
		} else {
			call(r.handlers.BuyOrder, result)
		}
	case ReplyCancelOrder:
		call(r.handlers.CancelOrder, result)
	case ReplyOrderBook:
		call(r.handlers.OrderBook, result)
	case ReplyModifyOrder:
		call(r.handlers.ModifyOrder, result)
	case ReplyPositions:
		call(r.handlers.Positions, result)
	case ReplySubscription:
		r.logger.Debug("subscription change confirmed")
	default:
		r.logger.Debug("reply with unknown kind dropped", "kind", int(kind))
	}
}

func call(h func(json.RawMessage), arg json.RawMessage) {
	if h != nil {
		h(arg)
	}
}

// decodeObject attempts to decode result as a JSON object. Returns the field
// map and whether result was an object.
func decodeObject(result json.RawMessage) (map[string]json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(result, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func hasField(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
