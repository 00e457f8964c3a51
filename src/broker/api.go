package broker

import (
	"context"
	"errors"
	"time"
)

// Terminal conditions the scheduler's per-tenant boundary distinguishes.
var (
	// ErrGatewayUnreachable means connect retries were exhausted this cycle.
	ErrGatewayUnreachable = errors.New("gateway unreachable")

	// ErrNoPermID means the broker accepted an order locally but never
	// assigned a permanent id within the polling window. The order must not
	// be persisted; it will surface on a later sync pass.
	ErrNoPermID = errors.New("no permanent id assigned")

	// ErrPriceUnavailable means no usable reference price came back.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// SummaryRow is one account-summary line as the broker reports it.
type SummaryRow struct {
	Tag      string
	Currency string
	Value    string
	Account  string
}

// PositionRow is one open position as the broker reports it.
type PositionRow struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
	Account  string
}

// FillRow is one execution event against an order.
type FillRow struct {
	Shares  float64
	Price   float64
	Time    time.Time
	Account string
}

// TradeRow is one broker order together with its fills.
type TradeRow struct {
	PermID         int64
	Symbol         string
	Action         string
	OrderType      string
	Quantity       float64
	LimitPrice     *float64
	StopPrice      *float64
	Status         string
	FilledQuantity float64
	AvgFillPrice   float64
	Account        string
	Fills          []FillRow
}

// OrderTicket describes an order to place.
type OrderTicket struct {
	Symbol     string
	Action     string
	OrderType  string
	Quantity   float64
	LimitPrice float64
	TIF        string
	OutsideRTH bool
}

// OrderSnapshot is the current broker-side view of a placed order. PermID
// stays zero until the broker permanently registers the order.
type OrderSnapshot struct {
	PermID         int64
	Status         string
	FilledQuantity float64
	AvgFillPrice   float64
	Account        string
}

// OrderHandle tracks one placed order as status updates arrive.
type OrderHandle interface {
	Snapshot() OrderSnapshot
}

// API is the low-level capability surface over one gateway session. One
// connected instance serves exactly one user's gateway; the scheduler opens
// and closes sessions strictly one at a time, which keeps client ids from
// colliding by construction. Tests substitute a fake.
type API interface {
	Connect(ctx context.Context, host string, port, clientID int, timeout time.Duration) error
	Disconnect()
	IsConnected() bool

	AccountSummary(ctx context.Context) ([]SummaryRow, error)
	Positions(ctx context.Context) ([]PositionRow, error)
	Trades(ctx context.Context) ([]TradeRow, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, ticket OrderTicket) (OrderHandle, error)
}
