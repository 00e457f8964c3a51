package broker

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	logger "github.com/sirupsen/logrus"
)

// wantedTags is the fixed account-summary metric set a daily snapshot
// captures.
var wantedTags = map[string]bool{
	"TotalCashValue":     true,
	"CashBalance":        true,
	"AccruedCash":        true,
	"AvailableFunds":     true,
	"ExcessLiquidity":    true,
	"NetLiquidation":     true,
	"RealizedPnL":        true,
	"UnrealizedPnL":      true,
	"GrossPositionValue": true,
	"BuyingPower":        true,
}

// AccountInformation is the parsed account summary: currency-qualified
// metric values plus the resolved home account identifier.
type AccountInformation struct {
	Account string
	Values  map[string]string
}

// Empty reports whether the gateway returned nothing usable.
func (a AccountInformation) Empty() bool {
	return len(a.Values) == 0
}

// Manager wraps one user's gateway session behind the low-level API.
// One instance → one user's gateway connection.
type Manager struct {
	api      API
	host     string
	port     int
	clientID int
	config   Config

	// lookupHost is swappable so tests can run without DNS.
	lookupHost func(string) ([]string, error)
}

// NewManager builds a session manager for one user's gateway. It does not
// connect; call Connect explicitly and Disconnect on every exit path.
func NewManager(api API, host string, port, clientID int) *Manager {
	return &Manager{
		api:        api,
		host:       host,
		port:       port,
		clientID:   clientID,
		config:     GetConfig(),
		lookupHost: net.LookupHost,
	}
}

// WithLookupHost overrides hostname resolution. Useful for tests.
func (m *Manager) WithLookupHost(fn func(string) ([]string, error)) *Manager {
	m.lookupHost = fn
	return m
}

// Connect waits for the container's name to resolve, then dials the session
// with bounded retries. Name resolution is retried separately from the
// transport connect: right after a container starts, engine DNS may lag the
// port opening. Exhaustion of either budget yields ErrGatewayUnreachable.
func (m *Manager) Connect(ctx context.Context) error {
	log := logger.WithFields(map[string]interface{}{
		"component": "broker.Manager",
		"host":      m.host,
		"port":      m.port,
		"client_id": m.clientID,
	})

	resolved := false
	for attempt := 1; attempt <= m.config.DNSTries; attempt++ {
		if _, err := m.lookupHost(m.host); err == nil {
			resolved = true
			break
		}
		log.WithField("attempt", attempt).Debug("DNS not ready, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.DNSDelay):
		}
	}
	if !resolved {
		log.Error("Hostname never resolved")
		return fmt.Errorf("%w: %s not resolvable", ErrGatewayUnreachable, m.host)
	}

	for attempt := 1; attempt <= m.config.ConnectTries; attempt++ {
		err := m.api.Connect(ctx, m.host, m.port, m.clientID, m.config.ConnectTimeout)
		if err == nil {
			log.Info("Connected to gateway")
			return nil
		}

		log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"tries":   m.config.ConnectTries,
		}).Warn("Gateway not ready")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.ConnectDelay):
		}
	}

	log.Error("Gave up connecting to gateway")
	return fmt.Errorf("%w: %s:%d", ErrGatewayUnreachable, m.host, m.port)
}

// Disconnect tears the session down. Safe to call on a never-connected or
// already-closed session.
func (m *Manager) Disconnect() {
	m.api.Disconnect()
	logger.WithFields(map[string]interface{}{
		"component": "broker.Manager",
		"host":      m.host,
	}).Debug("Disconnected from gateway")
}

// AccountInformation fetches the account summary and reduces it to the
// wanted metric set. Keys are currency-qualified ("NetLiquidation (USD)")
// when the broker reports a currency. The home account is the first row
// whose account is not the "All" aggregate.
func (m *Manager) AccountInformation(ctx context.Context) (AccountInformation, error) {
	rows, err := m.api.AccountSummary(ctx)
	if err != nil {
		return AccountInformation{}, err
	}

	info := AccountInformation{Values: map[string]string{}}
	for _, row := range rows {
		if wantedTags[row.Tag] {
			key := row.Tag
			if row.Currency != "" {
				key = fmt.Sprintf("%s (%s)", row.Tag, row.Currency)
			}
			info.Values[key] = row.Value
		}
		if info.Account == "" && row.Account != "All" {
			info.Account = row.Account
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "broker.Manager",
		"host":      m.host,
		"metrics":   len(info.Values),
		"account":   info.Account,
	}).Debug("Account summary parsed")

	return info, nil
}

// OpenPositions fetches the current position set.
func (m *Manager) OpenPositions(ctx context.Context) ([]PositionRow, error) {
	positions, err := m.api.Positions(ctx)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "broker.Manager",
		"host":      m.host,
		"rows":      len(positions),
	}).Debug("Fetched open positions")

	return positions, nil
}

// Trades fetches the session's orders with their fills.
func (m *Manager) Trades(ctx context.Context) ([]TradeRow, error) {
	return m.api.Trades(ctx)
}

// PlaceTestOrder places a 1-share aggressive BUY limit at +2% over the last
// price so it fills immediately, then polls until the broker assigns a
// permanent id. A missing permanent id after the window is ErrNoPermID and
// the order must not be persisted yet.
func (m *Manager) PlaceTestOrder(ctx context.Context, symbol string) (OrderSnapshot, error) {
	price, err := m.api.LastPrice(ctx, symbol)
	if err != nil {
		return OrderSnapshot{}, err
	}
	if price <= 0 || math.IsNaN(price) {
		return OrderSnapshot{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}

	limitPrice := math.Round(price*1.02*100) / 100

	handle, err := m.api.PlaceOrder(ctx, OrderTicket{
		Symbol:     symbol,
		Action:     "BUY",
		OrderType:  "LMT",
		Quantity:   1,
		LimitPrice: limitPrice,
		TIF:        "GTC",
		OutsideRTH: true,
	})
	if err != nil {
		return OrderSnapshot{}, err
	}

	var snap OrderSnapshot
	for attempt := 0; attempt < m.config.PermIDTries; attempt++ {
		snap = handle.Snapshot()
		if snap.PermID != 0 {
			logger.WithFields(map[string]interface{}{
				"component":   "broker.Manager",
				"symbol":      symbol,
				"limit_price": limitPrice,
				"perm_id":     snap.PermID,
				"status":      snap.Status,
			}).Info("Test order placed")

			return snap, nil
		}

		select {
		case <-ctx.Done():
			return OrderSnapshot{}, ctx.Err()
		case <-time.After(m.config.PermIDDelay):
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "broker.Manager",
		"symbol":    symbol,
		"status":    snap.Status,
	}).Warn("Order accepted locally but no permanent id within window")

	return OrderSnapshot{}, ErrNoPermID
}
