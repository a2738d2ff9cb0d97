// console is a line-mode trading client for the Deribit JSON-RPC WebSocket
// API: authenticate, place and manage orders, inspect the book and
// positions, and watch subscription channels, all over one socket.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/asrivas/deribit-console/internal/config"
	"github.com/asrivas/deribit-console/internal/rpc"
	"github.com/asrivas/deribit-console/internal/session"
	"github.com/asrivas/deribit-console/internal/sign"
	"github.com/asrivas/deribit-console/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/console.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	app := &console{
		cfg:    cfg,
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
	}
	app.run(context.Background())
}

type console struct {
	cfg    *config.Config
	logger *slog.Logger
	in     *bufio.Reader

	sess *session.Session
}

func (c *console) run(ctx context.Context) {
	defer func() {
		if c.sess != nil {
			c.sess.Close()
		}
	}()

	for {
		showMenu()
		choice, err := strconv.Atoi(c.readLine(""))
		if err != nil {
			fmt.Println("Invalid choice.")
			continue
		}

		switch choice {
		case 1:
			c.authorize(ctx)
		case 2:
			c.accountSummary(ctx)
		case 3:
			c.buyOrder(ctx)
		case 4:
			c.cancelOrder(ctx)
		case 5:
			c.orderBook(ctx)
		case 6:
			c.modifyOrder(ctx)
		case 7:
			c.positions(ctx)
		case 8:
			c.subscribe()
		case 9:
			c.unsubscribe()
		case 10:
			return
		default:
			fmt.Println("Invalid choice.")
		}
	}
}

func showMenu() {
	fmt.Println("\nMenu:")
	fmt.Println("1. Authorize")
	fmt.Println("2. Get Account Summary")
	fmt.Println("3. Place a Buy Order")
	fmt.Println("4. Cancel Order")
	fmt.Println("5. Get Order Book")
	fmt.Println("6. Modify Order")
	fmt.Println("7. View Current Positions")
	fmt.Println("8. Subscribe to Channel")
	fmt.Println("9. Unsubscribe from Channel")
	fmt.Println("10. Exit")
	fmt.Print("Enter your choice: ")
}

func (c *console) readLine(prompt string) string {
	if prompt != "" {
		fmt.Print(prompt)
	}
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *console) readInt(prompt string) int {
	n, _ := strconv.Atoi(c.readLine(prompt))
	return n
}

func (c *console) readFloat(prompt string) float64 {
	f, _ := strconv.ParseFloat(c.readLine(prompt), 64)
	return f
}

// connected guards menu actions that need a live session.
func (c *console) connected() bool {
	if c.sess == nil {
		fmt.Println("Not connected. Authorize first.")
		return false
	}
	return true
}

func (c *console) authorize(ctx context.Context) {
	clientID := c.readLine("Enter Client Id: ")
	clientSecret := c.readLine("Enter Client Secret: ")
	creds := &sign.Credentials{ClientID: clientID, ClientSecret: clientSecret}

	sessCfg := session.Config{
		URL:              c.cfg.Venue.WSURL,
		LegacyRouting:    c.cfg.Session.LegacyRouting,
		HandshakeTimeout: c.cfg.Session.HandshakeTimeout,
		WriteTimeout:     c.cfg.Session.WriteTimeout,
		BufferSize:       c.cfg.Session.BufferSize,
	}

	sess := session.New(sessCfg, printHandlers(), c.logger)
	sess.OnAuthRequest(func() ([]byte, error) {
		ts, nonce, sig := creds.Sign()
		return rpc.Authorize(creds.ClientID, ts, sig, nonce), nil
	})

	if err := sess.Connect(ctx); err != nil {
		fmt.Printf("Connection error: %v\n", err)
		return
	}

	if err := sess.WaitAuthenticated(ctx); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		sess.Close()
		return
	}

	c.sess = sess
}

func (c *console) accountSummary(ctx context.Context) {
	if !c.connected() {
		return
	}
	currency := c.readLine("Enter Currency: ")
	if err := c.sess.SendExpect(rpc.AccountSummary(currency), session.ReplyAccountSummary); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) buyOrder(ctx context.Context) {
	if !c.connected() {
		return
	}
	instrument := c.readLine("Enter instrument name: ")
	amount := c.readInt("Enter amount: ")
	orderType := c.readLine("Enter order type (limit, market, stop_limit, etc.): ")

	var price float64
	if orderType == "limit" || orderType == "stop_limit" {
		price = c.readFloat("Enter price: ")
	}

	timeInForce := c.readLine("Enter time-in-force (good_til_cancelled, fill_or_kill, etc.): ")
	label := c.readLine("Enter label: ")

	body := rpc.Buy(instrument, amount, orderType, price, timeInForce, label, c.sess.AccessToken())
	if err := c.sess.SendExpect(body, session.ReplyBuyOrder); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) cancelOrder(ctx context.Context) {
	if !c.connected() {
		return
	}
	orderID := c.readLine("Enter order id: ")
	if err := c.sess.SendExpect(rpc.Cancel(orderID), session.ReplyCancelOrder); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) orderBook(ctx context.Context) {
	if !c.connected() {
		return
	}
	instrument := c.readLine("Enter instrument name: ")
	depth := c.readInt("Enter depth: ")
	if err := c.sess.SendExpect(rpc.OrderBook(instrument, depth), session.ReplyOrderBook); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) modifyOrder(ctx context.Context) {
	if !c.connected() {
		return
	}
	orderID := c.readLine("Enter order id: ")
	amount := c.readInt("Enter new amount: ")
	price := c.readFloat("Enter new price: ")
	timeInForce := c.readLine("Enter time-in-force: ")

	body := rpc.Edit(orderID, amount, price, timeInForce, false, false)
	if err := c.sess.SendExpect(body, session.ReplyModifyOrder); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) positions(ctx context.Context) {
	if !c.connected() {
		return
	}
	currency := c.readLine("Enter Currency: ")
	kind := c.readLine("Enter kind (future, option; empty for future): ")
	if err := c.sess.SendExpect(rpc.Positions(currency, kind), session.ReplyPositions); err != nil {
		return
	}
	c.sess.AwaitReply(ctx)
}

func (c *console) subscribe() {
	if !c.connected() {
		return
	}
	channel := c.readLine("Enter channel (e.g. ticker.BTC-PERPETUAL.100ms): ")
	c.sess.Subscribe(channel)
	fmt.Printf("Subscribed to channel: %s\n", channel)
}

func (c *console) unsubscribe() {
	if !c.connected() {
		return
	}
	channel := c.readLine("Enter channel: ")
	c.sess.Unsubscribe(channel)
	fmt.Printf("Unsubscribed from channel: %s\n", channel)
}

// printHandlers renders replies and push updates to stdout.
func printHandlers() session.Handlers {
	return session.Handlers{
		Auth: func(json.RawMessage) {
			fmt.Println("Authentication successful!")
		},
		AccountSummary: printAccountSummary,
		BuyOrder:       printBuyOrder,
		CancelOrder:    printCancelOrder,
		ModifyOrder:    printModifyOrder,
		OrderBook:      printOrderBook,
		Positions:      printPositions,
		RemoteError: func(message string) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		},
		Ticker: func(channel string, data json.RawMessage) {
			fmt.Printf("Ticker Update (%s): %s\n", channel, indent(data))
		},
		Trades: func(channel string, data json.RawMessage) {
			fmt.Printf("Trade Update (%s): %s\n", channel, indent(data))
		},
		Book: func(channel string, data json.RawMessage) {
			fmt.Printf("Order Book Update (%s): %s\n", channel, indent(data))
		},
		Generic: func(channel string, data json.RawMessage) {
			fmt.Printf("Update (%s): %s\n", channel, indent(data))
		},
	}
}

func indent(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func printAccountSummary(result json.RawMessage) {
	var s struct {
		Balance           float64 `json:"balance"`
		Currency          string  `json:"currency"`
		Equity            float64 `json:"equity"`
		InitialMargin     float64 `json:"initial_margin"`
		MaintenanceMargin float64 `json:"maintenance_margin"`
		AvailableFunds    float64 `json:"available_funds"`
		MarginBalance     float64 `json:"margin_balance"`
	}
	if err := json.Unmarshal(result, &s); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed account summary: %v\n", err)
		return
	}
	fmt.Println("\nAccount Summary:")
	fmt.Printf("Balance: %v\n", s.Balance)
	fmt.Printf("Currency: %s\n", s.Currency)
	fmt.Printf("Equity: %v\n", s.Equity)
	fmt.Printf("Initial Margin: %v\n", s.InitialMargin)
	fmt.Printf("Maintenance Margin: %v\n", s.MaintenanceMargin)
	fmt.Printf("Available Funds: %v\n", s.AvailableFunds)
	fmt.Printf("Margin Balance: %v\n", s.MarginBalance)
}

func printBuyOrder(order json.RawMessage) {
	var o struct {
		OrderID        string  `json:"order_id"`
		InstrumentName string  `json:"instrument_name"`
		Direction      string  `json:"direction"`
		Amount         float64 `json:"amount"`
		Price          float64 `json:"price"`
		OrderType      string  `json:"order_type"`
		OrderState     string  `json:"order_state"`
		FilledAmount   float64 `json:"filled_amount"`
		AveragePrice   float64 `json:"average_price"`
	}
	if err := json.Unmarshal(order, &o); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed order: %v\n", err)
		return
	}
	fmt.Println("Buy Order Placed Successfully!")
	fmt.Printf("Order ID: %s\n", o.OrderID)
	fmt.Printf("Instrument: %s\n", o.InstrumentName)
	fmt.Printf("Direction: %s\n", o.Direction)
	fmt.Printf("Amount: %v\n", o.Amount)
	fmt.Printf("Price: %v\n", o.Price)
	fmt.Printf("Order Type: %s\n", o.OrderType)
	fmt.Printf("Order State: %s\n", o.OrderState)
	fmt.Printf("Filled Amount: %v\n", o.FilledAmount)
	fmt.Printf("Average Price: %v\n", o.AveragePrice)
}

func printCancelOrder(result json.RawMessage) {
	var r struct {
		OrderID     string `json:"order_id"`
		TimeInForce string `json:"time_in_force"`
		OrderType   string `json:"order_type"`
	}
	if err := json.Unmarshal(result, &r); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed cancel result: %v\n", err)
		return
	}
	fmt.Println("Canceled Order Successfully!")
	fmt.Printf("Order ID: %s\n", r.OrderID)
	fmt.Printf("Time in Force: %s\n", r.TimeInForce)
	fmt.Printf("Order Type: %s\n", r.OrderType)
}

func printModifyOrder(result json.RawMessage) {
	var r struct {
		OrderID    string  `json:"order_id"`
		Amount     float64 `json:"amount"`
		Price      float64 `json:"price"`
		OrderState string  `json:"order_state"`
	}
	if err := json.Unmarshal(result, &r); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed modify result: %v\n", err)
		return
	}
	fmt.Println("\nOrder Modified Successfully!")
	fmt.Printf("Order ID: %s\n", r.OrderID)
	fmt.Printf("New Amount: %v\n", r.Amount)
	fmt.Printf("New Price: %v\n", r.Price)
	fmt.Printf("Order State: %s\n", r.OrderState)
}

func printOrderBook(result json.RawMessage) {
	var b struct {
		InstrumentName string      `json:"instrument_name"`
		Timestamp      int64       `json:"timestamp"`
		LastPrice      float64     `json:"last_price"`
		BestBidPrice   float64     `json:"best_bid_price"`
		BestBidAmount  float64     `json:"best_bid_amount"`
		BestAskPrice   float64     `json:"best_ask_price"`
		BestAskAmount  float64     `json:"best_ask_amount"`
		MarkPrice      float64     `json:"mark_price"`
		OpenInterest   float64     `json:"open_interest"`
		Bids           [][]float64 `json:"bids"`
		Asks           [][]float64 `json:"asks"`
	}
	if err := json.Unmarshal(result, &b); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed order book: %v\n", err)
		return
	}
	fmt.Println("\nOrder Book Details:")
	fmt.Printf("Instrument: %s\n", b.InstrumentName)
	fmt.Printf("Timestamp: %d\n", b.Timestamp)
	fmt.Printf("Last Price: %v\n", b.LastPrice)
	fmt.Printf("Best Bid Price: %v\n", b.BestBidPrice)
	fmt.Printf("Best Bid Amount: %v\n", b.BestBidAmount)
	fmt.Printf("Best Ask Price: %v\n", b.BestAskPrice)
	fmt.Printf("Best Ask Amount: %v\n", b.BestAskAmount)
	fmt.Printf("Mark Price: %v\n", b.MarkPrice)
	fmt.Printf("Open Interest: %v\n", b.OpenInterest)

	fmt.Println("\nBids:")
	if len(b.Bids) == 0 {
		fmt.Println("No bids found.")
	}
	for _, bid := range b.Bids {
		if len(bid) >= 2 {
			fmt.Printf("Price: %v, Amount: %v\n", bid[0], bid[1])
		}
	}

	fmt.Println("\nAsks:")
	if len(b.Asks) == 0 {
		fmt.Println("No asks found.")
	}
	for _, ask := range b.Asks {
		if len(ask) >= 2 {
			fmt.Printf("Price: %v, Amount: %v\n", ask[0], ask[1])
		}
	}
}

func printPositions(result json.RawMessage) {
	var positions []struct {
		InstrumentName     string  `json:"instrument_name"`
		Size               float64 `json:"size"`
		Direction          string  `json:"direction"`
		AveragePrice       float64 `json:"average_price"`
		MarkPrice          float64 `json:"mark_price"`
		TotalProfitLoss    float64 `json:"total_profit_loss"`
		FloatingProfitLoss float64 `json:"floating_profit_loss"`
		RealizedProfitLoss float64 `json:"realized_profit_loss"`
		Leverage           float64 `json:"leverage"`
	}
	if err := json.Unmarshal(result, &positions); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed positions: %v\n", err)
		return
	}
	if len(positions) == 0 {
		fmt.Println("No positions found.")
		return
	}
	fmt.Println("\nCurrent Positions:")
	for _, p := range positions {
		fmt.Printf("Instrument: %s\n", p.InstrumentName)
		fmt.Printf("Size: %v\n", p.Size)
		fmt.Printf("Direction: %s\n", p.Direction)
		fmt.Printf("Average Price: %v\n", p.AveragePrice)
		fmt.Printf("Mark Price: %v\n", p.MarkPrice)
		fmt.Printf("Total Profit/Loss: %v\n", p.TotalProfitLoss)
		fmt.Printf("Floating Profit/Loss: %v\n", p.FloatingProfitLoss)
		fmt.Printf("Realized Profit/Loss: %v\n", p.RealizedProfitLoss)
		fmt.Printf("Leverage: %v\n", p.Leverage)
		fmt.Println("----------------------------")
	}
}
