// MINIMAL GATEWAY SOCKET API CLIENT
// Implements the subset of the wire protocol that reconciliation needs:
// handshake, account summary, positions, open orders, executions, market
// data snapshot and plain limit orders. Everything else in a frame is
// skipped; frames are length-delimited so unknown tails are safe to drop.
package ibgw

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"selftrading/src/broker"
)

// Outgoing message ids.
const (
	outReqMktData        = 1
	outPlaceOrder        = 3
	outReqOpenOrders     = 5
	outReqExecutions     = 7
	outReqPositions      = 61
	outReqAccountSummary = 62
	outStartAPI          = 71
)

// Incoming message ids.
const (
	inTickPrice         = 1
	inOrderStatus       = 3
	inErrMsg            = 4
	inOpenOrder         = 5
	inNextValidID       = 9
	inExecutionData     = 11
	inManagedAccts      = 15
	inOpenOrderEnd      = 53
	inExecutionDataEnd  = 55
	inTickSnapshotEnd   = 57
	inPositionData      = 61
	inPositionEnd       = 62
	inAccountSummary    = 63
	inAccountSummaryEnd = 64
)

const (
	clientVersionRange = "v100..187"
	requestTimeout     = 15 * time.Second

	// summaryTags is the tag list requested from the gateway; the session
	// manager narrows it further to its wanted set.
	summaryTags = "TotalCashValue,CashBalance,AccruedCash,AvailableFunds," +
		"ExcessLiquidity,NetLiquidation,RealizedPnL,UnrealizedPnL," +
		"GrossPositionValue,BuyingPower"
)

type orderState struct {
	orderID    int64
	permID     int64
	symbol     string
	action     string
	orderType  string
	quantity   float64
	limitPrice float64
	stopPrice  float64
	account    string
	status     string
	filled     float64
	avgFill    float64
}

// Client is one socket session to a gateway container. It satisfies
// broker.API. Not safe for concurrent request use; the scheduler issues
// requests strictly one at a time per session.
type Client struct {
	mu   sync.Mutex
	conn net.Conn

	connected     bool
	serverVersion int
	accounts      []string
	nextOrderID   int64
	reqSeq        int64

	orders    map[int64]*orderState            // keyed by client order id
	fills     map[int64][]broker.FillRow       // keyed by permanent id
	summaries map[int64][]broker.SummaryRow    // keyed by request id
	positions []broker.PositionRow
	prices    map[int64]float64 // keyed by ticker id

	waiters map[string]chan struct{}

	log *logger.Entry
}

// NewClient builds a disconnected client.
func NewClient() *Client {
	return &Client{
		orders:    map[int64]*orderState{},
		fills:     map[int64][]broker.FillRow{},
		summaries: map[int64][]broker.SummaryRow{},
		prices:    map[int64]float64{},
		waiters:   map[string]chan struct{}{},
		log:       logger.WithField("component", "ibgw.Client"),
	}
}

// Connect dials the gateway, performs the version handshake and startApi
// exchange, then waits for the session's initial order id. The whole
// sequence is bounded by the given timeout.
func (c *Client) Connect(ctx context.Context, host string, port, clientID int, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	// Version handshake: raw API prefix, then the supported version range.
	if _, err := conn.Write([]byte("API\x00")); err != nil {
		conn.Close()
		return fmt.Errorf("handshake write: %w", err)
	}
	if err := writeFrame(conn, clientVersionRange); err != nil {
		conn.Close()
		return fmt.Errorf("handshake write: %w", err)
	}

	greeting, err := readFrame(conn)
	if err != nil || len(greeting) < 1 {
		conn.Close()
		return fmt.Errorf("handshake read: %w", err)
	}
	c.serverVersion, _ = strconv.Atoi(greeting[0])

	if err := writeFrame(conn,
		strconv.Itoa(outStartAPI),
		"2", // startApi message version
		strconv.Itoa(clientID),
		"", // optional capabilities
	); err != nil {
		conn.Close()
		return fmt.Errorf("startApi: %w", err)
	}

	// Session is usable once the gateway hands out the next order id.
	started := false
	for !started {
		fields, err := readFrame(conn)
		if err != nil {
			conn.Close()
			return fmt.Errorf("session start: %w", err)
		}
		r := &fieldReader{fields: fields}
		switch r.nextInt() {
		case inNextValidID:
			r.skip(1) // message version
			c.nextOrderID = r.nextInt64()
			started = true
		case inManagedAccts:
			r.skip(1)
			c.accounts = strings.Split(r.next(), ",")
		case inErrMsg:
			c.handleErrMsg(r)
		}
	}

	_ = conn.SetDeadline(time.Time{})
	c.conn = conn
	c.connected = true

	go c.readLoop(conn)

	c.log.WithFields(map[string]interface{}{
		"addr":           addr,
		"client_id":      clientID,
		"server_version": c.serverVersion,
	}).Info("Session established")

	return nil
}

// Disconnect closes the socket. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// IsConnected reports whether the session socket is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) nextReqID() int64 {
	c.reqSeq++
	return c.reqSeq
}

func (c *Client) waiter(key string) chan struct{} {
	done := make(chan struct{})
	c.waiters[key] = done
	return done
}

func (c *Client) signal(key string) {
	if done, ok := c.waiters[key]; ok {
		close(done)
		delete(c.waiters, key)
	}
}

func (c *Client) send(fields ...string) error {
	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return writeFrame(c.conn, fields...)
}

func await(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(requestTimeout):
		return fmt.Errorf("gateway request timed out")
	}
}

// AccountSummary requests the fixed tag list for all accounts and blocks
// until the end marker arrives.
func (c *Client) AccountSummary(ctx context.Context) ([]broker.SummaryRow, error) {
	c.mu.Lock()
	reqID := c.nextReqID()
	done := c.waiter(fmt.Sprintf("summary:%d", reqID))
	c.summaries[reqID] = nil
	err := c.send(
		strconv.Itoa(outReqAccountSummary),
		"1", // message version
		strconv.FormatInt(reqID, 10),
		"All",
		summaryTags,
	)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := await(ctx, done); err != nil {
		return nil, fmt.Errorf("account summary: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.summaries[reqID]
	delete(c.summaries, reqID)
	return rows, nil
}

// Positions requests the position set and blocks until the end marker.
func (c *Client) Positions(ctx context.Context) ([]broker.PositionRow, error) {
	c.mu.Lock()
	done := c.waiter("positions")
	c.positions = nil
	err := c.send(strconv.Itoa(outReqPositions), "1")
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := await(ctx, done); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]broker.PositionRow, len(c.positions))
	copy(out, c.positions)
	return out, nil
}

// Trades refreshes open orders and executions, then assembles one row per
// known order with its fills grouped by permanent id. Orders the broker has
// not yet permanently registered come back with PermID zero; callers skip
// those.
func (c *Client) Trades(ctx context.Context) ([]broker.TradeRow, error) {
	c.mu.Lock()
	ordersDone := c.waiter("openOrders")
	err := c.send(strconv.Itoa(outReqOpenOrders), "1")
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := await(ctx, ordersDone); err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}

	c.mu.Lock()
	reqID := c.nextReqID()
	execsDone := c.waiter(fmt.Sprintf("execs:%d", reqID))
	// Execution filter: all fields empty → everything this session can see.
	err = c.send(
		strconv.Itoa(outReqExecutions),
		"3", // message version
		strconv.FormatInt(reqID, 10),
		"", "", "", "", "", "", "",
	)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := await(ctx, execsDone); err != nil {
		return nil, fmt.Errorf("executions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	trades := make([]broker.TradeRow, 0, len(c.orders))
	for _, o := range c.orders {
		row := broker.TradeRow{
			PermID:         o.permID,
			Symbol:         o.symbol,
			Action:         o.action,
			OrderType:      o.orderType,
			Quantity:       o.quantity,
			Status:         o.status,
			FilledQuantity: o.filled,
			AvgFillPrice:   o.avgFill,
			Account:        o.account,
		}
		if o.limitPrice != 0 {
			p := o.limitPrice
			row.LimitPrice = &p
		}
		if o.stopPrice != 0 {
			p := o.stopPrice
			row.StopPrice = &p
		}
		if o.permID != 0 {
			row.Fills = append(row.Fills, c.fills[o.permID]...)
		}
		trades = append(trades, row)
	}
	return trades, nil
}

// LastPrice requests a market-data snapshot and returns the last trade
// price, falling back to the close when no trade has printed.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	tickerID := c.nextReqID()
	done := c.waiter(fmt.Sprintf("tick:%d", tickerID))
	err := c.send(
		strconv.Itoa(outReqMktData),
		"11", // message version
		strconv.FormatInt(tickerID, 10),
		"0", symbol, "STK", "", "0", "", "", "SMART", "", "USD", "", "",
		"",  // generic tick list
		"1", // snapshot
		"0", // regulatory snapshot
		"",  // options
	)
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if err := await(ctx, done); err != nil {
		return 0, fmt.Errorf("market data: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	price := c.prices[tickerID]
	delete(c.prices, tickerID)
	if price <= 0 {
		return 0, broker.ErrPriceUnavailable
	}
	return price, nil
}

// PlaceOrder submits a plain limit or market order and returns a handle
// that tracks status updates. The permanent id arrives asynchronously via
// orderStatus; callers poll the handle.
func (c *Client) PlaceOrder(ctx context.Context, ticket broker.OrderTicket) (broker.OrderHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orderID := c.nextOrderID
	c.nextOrderID++

	limitPrice := ""
	if ticket.OrderType == "LMT" {
		limitPrice = encodeFloat(ticket.LimitPrice)
	}

	// Plain-order field subset; every omitted feature field is sent at its
	// protocol default.
	fields := []string{
		strconv.Itoa(outPlaceOrder),
		strconv.FormatInt(orderID, 10),
		// contract
		"0", ticket.Symbol, "STK", "", "0", "", "", "SMART", "", "USD", "", "",
		"", // secIdType
		"", // secId
		// order basics
		ticket.Action,
		encodeFloat(ticket.Quantity),
		ticket.OrderType,
		limitPrice,
		"", // auxPrice
		ticket.TIF,
		"",  // ocaGroup
		"",  // account
		"",  // openClose
		"0", // origin
		"",  // orderRef
		"1", // transmit
		"0", // parentId
		"0", // blockOrder
		"0", // sweepToFill
		"0", // displaySize
		"0", // triggerMethod
		encodeBool(ticket.OutsideRTH),
		"0", // hidden
	}
	// Remaining feature fields at defaults: combo legs, advisor, algo,
	// conditions, solicited, etc.
	for i := 0; i < 40; i++ {
		fields = append(fields, "")
	}

	if err := c.send(fields...); err != nil {
		return nil, err
	}

	c.orders[orderID] = &orderState{
		orderID:    orderID,
		symbol:     ticket.Symbol,
		action:     ticket.Action,
		orderType:  ticket.OrderType,
		quantity:   ticket.Quantity,
		limitPrice: ticket.LimitPrice,
		status:     "PendingSubmit",
	}

	c.log.WithFields(map[string]interface{}{
		"order_id": orderID,
		"symbol":   ticket.Symbol,
		"action":   ticket.Action,
		"type":     ticket.OrderType,
	}).Debug("Order transmitted")

	return &orderHandle{client: c, orderID: orderID}, nil
}

type orderHandle struct {
	client  *Client
	orderID int64
}

func (h *orderHandle) Snapshot() broker.OrderSnapshot {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()

	o, ok := h.client.orders[h.orderID]
	if !ok {
		return broker.OrderSnapshot{}
	}
	return broker.OrderSnapshot{
		PermID:         o.permID,
		Status:         o.status,
		FilledQuantity: o.filled,
		AvgFillPrice:   o.avgFill,
		Account:        o.account,
	}
}
