package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"selftrading/src/broker"
)

func TestMetricPrefersCurrencyQualifiedKey(t *testing.T) {
	info := broker.AccountInformation{Values: map[string]string{
		"NetLiquidation (USD)": "100000.50",
		"NetLiquidation":       "999",
		"BuyingPower":          "400000",
		"RealizedPnL (USD)":    "not-a-number",
	}}

	require.Equal(t, "100000.5", metric(info, "NetLiquidation").String())
	require.Equal(t, "400000", metric(info, "BuyingPower").String())
	require.True(t, metric(info, "AvailableFunds").IsZero())
	require.True(t, metric(info, "RealizedPnL").IsZero())
}

func TestFillsFromTradesFlattensPartialFills(t *testing.T) {
	fillTime := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	rows := []broker.TradeRow{
		{
			PermID: 1001, Symbol: "AAPL", Action: "BUY", OrderType: "LMT",
			Fills: []broker.FillRow{
				{Shares: 6, Price: 187.30, Time: fillTime, Account: "DU1"},
				{Shares: 4, Price: 187.35, Time: fillTime.Add(3 * time.Second), Account: "DU1"},
			},
		},
		// Not yet durably registered: contributes nothing.
		{PermID: 0, Symbol: "NVDA", Fills: []broker.FillRow{{Shares: 1, Price: 120, Time: fillTime}}},
	}

	fills := fillsFromTrades(9, rows)
	require.Len(t, fills, 2)
	require.EqualValues(t, 9, fills[0].UserID)
	require.EqualValues(t, 1001, fills[0].PermID)
	require.Equal(t, 6.0, fills[0].Quantity)
	require.Equal(t, 4.0, fills[1].Quantity)
}
