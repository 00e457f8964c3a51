package ibgw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// contractFiller stands in for the nine contract fields between symbol and
// the next field a handler reads (secType through tradingClass).
func contractFiller() []string {
	return []string{"STK", "", "0", "", "", "SMART", "", "USD", ""}
}

func openOrderFrame(orderID, symbol, action, quantity, orderType, limit, stop, account string) []string {
	fields := []string{"5", orderID, "0", symbol}
	fields = append(fields, contractFiller()...)
	fields = append(fields, action, quantity, orderType, limit, stop, "GTC", "", account)
	return fields
}

func executionFrame(orderID, symbol, fillTime, account, side, shares, price, permID string) []string {
	fields := []string{"11", "1", orderID, "0", symbol}
	fields = append(fields, contractFiller()...)
	fields = append(fields, "exec-id-1", fillTime, account, "NASDAQ", side, shares, price, permID)
	return fields
}

func TestDispatchMergesOpenOrderAndOrderStatus(t *testing.T) {
	c := NewClient()

	c.dispatch(openOrderFrame("101", "AAPL", "BUY", "10", "LMT", "187.5", "0", "DU123456"))
	// orderStatus: orderId, status, filled, remaining, avgFillPrice, permId.
	c.dispatch([]string{"3", "101", "Submitted", "4", "6", "187.4", "7001"})

	o := c.orders[101]
	require.NotNil(t, o)
	require.Equal(t, "AAPL", o.symbol)
	require.Equal(t, "BUY", o.action)
	require.Equal(t, "LMT", o.orderType)
	require.Equal(t, 10.0, o.quantity)
	require.Equal(t, 187.5, o.limitPrice)
	require.Equal(t, "DU123456", o.account)
	require.Equal(t, "Submitted", o.status)
	require.Equal(t, 4.0, o.filled)
	require.Equal(t, 187.4, o.avgFill)
	require.EqualValues(t, 7001, o.permID)
}

func TestDispatchOrderStatusKeepsPermIDWhenOmitted(t *testing.T) {
	c := NewClient()

	c.dispatch([]string{"3", "101", "Submitted", "0", "10", "0", "7001"})
	// Later status update without a permId must not wipe the known one.
	c.dispatch([]string{"3", "101", "Filled", "10", "0", "187.4", "0"})

	o := c.orders[101]
	require.NotNil(t, o)
	require.Equal(t, "Filled", o.status)
	require.EqualValues(t, 7001, o.permID)
}

func TestDispatchExecutionDataDeduplicatesByFillTime(t *testing.T) {
	c := NewClient()

	frame := executionFrame("101", "AAPL", "20250602  14:30:05", "DU123456", "BOT", "6", "187.30", "7001")
	c.dispatch(frame)
	c.dispatch(frame) // re-reported on a later refresh
	c.dispatch(executionFrame("101", "AAPL", "20250602  14:30:08", "DU123456", "BOT", "4", "187.35", "7001"))

	fills := c.fills[7001]
	require.Len(t, fills, 2)
	require.Equal(t, 6.0, fills[0].Shares)
	require.Equal(t, 4.0, fills[1].Shares)
	require.Equal(t, "DU123456", fills[0].Account)

	expected := time.Date(2025, 6, 2, 14, 30, 5, 0, time.Local)
	require.True(t, fills[0].Time.Equal(expected), "got %v", fills[0].Time)
}

func TestDispatchExecutionDataBackfillsOrder(t *testing.T) {
	c := NewClient()

	// Order known only from a status line: no symbol or action yet.
	c.dispatch([]string{"3", "101", "Filled", "10", "0", "187.4", "0"})
	c.dispatch(executionFrame("101", "AAPL", "20250602  14:30:05", "DU123456", "BOT", "10", "187.40", "7001"))

	o := c.orders[101]
	require.NotNil(t, o)
	require.EqualValues(t, 7001, o.permID)
	require.Equal(t, "AAPL", o.symbol)
	require.Equal(t, "BUY", o.action)
}

func TestDispatchExecutionDataDropsUnregisteredFills(t *testing.T) {
	c := NewClient()

	c.dispatch(executionFrame("101", "AAPL", "20250602  14:30:05", "DU123456", "BOT", "10", "187.40", "0"))
	require.Empty(t, c.fills)
}

func TestDispatchTickPricePrefersLastOverClose(t *testing.T) {
	c := NewClient()

	// Close arrives first as a fallback; a real last trade then wins.
	c.dispatch([]string{"1", "1", "55", "9", "186.00", "0", "0"})
	require.Equal(t, 186.00, c.prices[55])

	c.dispatch([]string{"1", "1", "55", "4", "187.50", "0", "0"})
	require.Equal(t, 187.50, c.prices[55])

	// A later close must not clobber the last trade.
	c.dispatch([]string{"1", "1", "55", "9", "185.00", "0", "0"})
	require.Equal(t, 187.50, c.prices[55])
}

func TestDispatchAccountSummaryGroupsByRequest(t *testing.T) {
	c := NewClient()

	c.dispatch([]string{"63", "1", "9", "DU123456", "NetLiquidation", "100000.5", "USD"})
	c.dispatch([]string{"63", "1", "9", "DU123456", "BuyingPower", "400000", ""})

	rows := c.summaries[9]
	require.Len(t, rows, 2)
	require.Equal(t, "NetLiquidation", rows[0].Tag)
	require.Equal(t, "100000.5", rows[0].Value)
	require.Equal(t, "USD", rows[0].Currency)
	require.Equal(t, "DU123456", rows[0].Account)
}

func TestParseFillTimeVariants(t *testing.T) {
	for _, raw := range []string{
		"20250602  14:30:05",
		"20250602-14:30:05",
	} {
		parsed := parseFillTime(raw)
		require.False(t, parsed.IsZero(), "layout %q should parse", raw)
		require.Equal(t, 2025, parsed.Year())
		require.Equal(t, 14, parsed.Hour())
	}

	require.True(t, parseFillTime("garbage").IsZero())
}
