package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asrivas/deribit-console/internal/rpc"
)

// mockVenue echoes each request id back with a canned result chosen by
// method. Requests with no canned result are ignored.
func mockVenue(t *testing.T, replies map[string]string) *httptest.Server {
	return mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			result, ok := replies[req.Method]
			if !ok {
				continue
			}
			reply, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  json.RawMessage(result),
			})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})
}

func TestSession_AuthHandshake(t *testing.T) {
	venue := mockVenue(t, map[string]string{
		"public/auth": `{"access_token":"tok1","expires_in":900,"token_type":"bearer"}`,
	})
	defer venue.Close()

	authReplies := make(chan json.RawMessage, 1)
	sess := New(DefaultConfig(wsURL(venue)), Handlers{
		Auth: func(result json.RawMessage) { authReplies <- result },
	}, nil)
	sess.OnAuthRequest(func() ([]byte, error) {
		return rpc.Authorize("client-id", "1700000000000", "deadbeef", "nonce1"), nil
	})

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.WaitAuthenticated(ctx); err != nil {
		t.Fatalf("WaitAuthenticated failed: %v", err)
	}

	if !sess.Authenticated() {
		t.Error("Authenticated() = false after handshake")
	}
	if got := sess.AccessToken(); got != "tok1" {
		t.Errorf("AccessToken() = %q, want %q", got, "tok1")
	}

	select {
	case reply := <-authReplies:
		var fields struct {
			TokenType string `json:"token_type"`
		}
		if err := json.Unmarshal(reply, &fields); err != nil || fields.TokenType != "bearer" {
			t.Errorf("auth handler got %s", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auth handler never fired")
	}
}

func TestSession_SendExpectAndAwaitReply(t *testing.T) {
	venue := mockVenue(t, map[string]string{
		"private/get_account_summary": `{"balance":10.5,"currency":"BTC","equity":10.6}`,
	})
	defer venue.Close()

	summaries := make(chan json.RawMessage, 1)
	sess := New(DefaultConfig(wsURL(venue)), Handlers{
		AccountSummary: func(result json.RawMessage) { summaries <- result },
	}, nil)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	if err := sess.SendExpect(rpc.AccountSummary("BTC"), ReplyAccountSummary); err != nil {
		t.Fatalf("SendExpect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.AwaitReply(ctx); err != nil {
		t.Fatalf("AwaitReply failed: %v", err)
	}

	select {
	case summary := <-summaries:
		var got struct {
			Balance  float64 `json:"balance"`
			Currency string  `json:"currency"`
		}
		if err := json.Unmarshal(summary, &got); err != nil {
			t.Fatalf("decode summary: %v", err)
		}
		if got.Balance != 10.5 || got.Currency != "BTC" {
			t.Errorf("summary = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("account summary handler never fired")
	}
}

func TestSession_PushDedupEndToEnd(t *testing.T) {
	notify := func(conn *websocket.Conn, data string) error {
		frame := `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"ticker.BTC-PERPETUAL.100ms","data":` + data + `}}`
		return conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Wait for the subscribe request, then stream.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		notify(conn, `{"last_price":50000}`)
		notify(conn, `{"last_price":50000}`)
		notify(conn, `{"last_price":50001}`)
		holdOpen(conn)
	})
	defer server.Close()

	pushes := make(chan string, 16)
	sess := New(DefaultConfig(wsURL(server)), Handlers{
		Ticker: func(ch string, data json.RawMessage) { pushes <- string(data) },
	}, nil)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	if err := sess.Subscribe("ticker.BTC-PERPETUAL.100ms"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-pushes:
			got = append(got, p)
		case <-timeout:
			t.Fatalf("received %d pushes, want 2: %v", len(got), got)
		}
	}

	// The duplicate must not slip through.
	select {
	case p := <-pushes:
		t.Fatalf("unexpected third push: %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSession_RemoteError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID int64 `json:"id"`
			}
			json.Unmarshal(msg, &req)
			reply := `{"jsonrpc":"2.0","id":3,"error":{"code":10009,"message":"not_enough_funds"}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	})
	defer server.Close()

	errs := make(chan string, 1)
	sess := New(DefaultConfig(wsURL(server)), Handlers{
		RemoteError: func(msg string) { errs <- msg },
	}, nil)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	if err := sess.SendExpect(rpc.Buy("BTC-PERPETUAL", 10, "market", 0, "good_til_cancelled", "t1", "tok"), ReplyBuyOrder); err != nil {
		t.Fatalf("SendExpect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.AwaitReply(ctx); err != nil {
		t.Fatalf("AwaitReply failed: %v", err)
	}

	select {
	case msg := <-errs:
		if msg != "not_enough_funds" {
			t.Errorf("remote error = %q, want %q", msg, "not_enough_funds")
		}
	case <-time.After(2 * time.Second):
		t.Error("remote error handler never fired")
	}
}

func TestSession_WaitAuthenticatedContextCancel(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	sess := New(DefaultConfig(wsURL(server)), Handlers{}, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := sess.WaitAuthenticated(ctx); err != context.DeadlineExceeded {
		t.Fatalf("WaitAuthenticated error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestSession_WaitersReleasedOnClose(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	sess := New(DefaultConfig(wsURL(server)), Handlers{}, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- sess.WaitAuthenticated(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	sess.Close()

	select {
	case err := <-waitErr:
		if err != ErrClosed {
			t.Errorf("WaitAuthenticated error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Close")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	sess := New(DefaultConfig(wsURL(server)), Handlers{}, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
}
