// Package rpc builds JSON-RPC 2.0 request bodies for the venue. All builders
// are pure: primitive arguments in, serialized body out. Callers treat the
// returned bytes as opaque.
package rpc

import "encoding/json"

// Request is the JSON-RPC 2.0 envelope for outbound requests.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Request ids are fixed per method.
const (
	AuthID int64 = iota + 1
	AccountSummaryID
	BuyID
	CancelID
	OrderBookID
	EditID
	PositionsID
	SubscribeID
	UnsubscribeID
)

// AuthScope is the fixed scope string requested during authentication.
const AuthScope = "block_rfq:read_write block_trade:read_write trade:read_write custody:read_write account:read_write wallet:read_write mainaccount"

func encode(id int64, method string, params any) []byte {
	body, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	return body
}

// Authorize builds a public/auth request using the client_signature grant.
func Authorize(clientID, timestamp, signature, nonce string) []byte {
	return encode(AuthID, "public/auth", map[string]any{
		"grant_type": "client_signature",
		"client_id":  clientID,
		"timestamp":  timestamp,
		"signature":  signature,
		"nonce":      nonce,
		"scope":      AuthScope,
	})
}

// AccountSummary builds a private/get_account_summary request.
func AccountSummary(currency string) []byte {
	return encode(AccountSummaryID, "private/get_account_summary", map[string]any{
		"currency": currency,
	})
}

// Buy builds a private/buy request. Price is included only for limit and
// stop_limit orders.
func Buy(instrument string, amount int, orderType string, price float64, timeInForce, label, accessToken string) []byte {
	params := map[string]any{
		"instrument_name": instrument,
		"access_token":    accessToken,
		"amount":          amount,
		"type":            orderType,
		"label":           label,
		"time_in_force":   timeInForce,
		"post_only":       false,
	}
	if orderType == "limit" || orderType == "stop_limit" {
		params["price"] = price
	}
	return encode(BuyID, "private/buy", params)
}

// Cancel builds a private/cancel request.
func Cancel(orderID string) []byte {
	return encode(CancelID, "private/cancel", map[string]any{
		"order_id": orderID,
	})
}

// OrderBook builds a public/get_order_book request.
func OrderBook(instrument string, depth int) []byte {
	return encode(OrderBookID, "public/get_order_book", map[string]any{
		"instrument_name": instrument,
		"depth":           depth,
	})
}

// Edit builds a private/edit request modifying an existing order.
func Edit(orderID string, amount int, price float64, timeInForce string, postOnly, reduceOnly bool) []byte {
	return encode(EditID, "private/edit", map[string]any{
		"order_id":      orderID,
		"amount":        amount,
		"price":         price,
		"post_only":     postOnly,
		"reduce_only":   reduceOnly,
		"time_in_force": timeInForce,
	})
}

// Positions builds a private/get_positions request. Empty kind defaults to
// future.
func Positions(currency, kind string) []byte {
	if kind == "" {
		kind = "future"
	}
	return encode(PositionsID, "private/get_positions", map[string]any{
		"currency": currency,
		"kind":     kind,
	})
}

// Subscribe builds a public/subscribe request for a single channel.
func Subscribe(channel string) []byte {
	return encode(SubscribeID, "public/subscribe", map[string]any{
		"channels": []string{channel},
	})
}

// Unsubscribe builds a public/unsubscribe request for a single channel.
func Unsubscribe(channel string) []byte {
	return encode(UnsubscribeID, "public/unsubscribe", map[string]any{
		"channels": []string{channel},
	})
}
