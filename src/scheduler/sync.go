package scheduler

import (
	"time"

	"github.com/shopspring/decimal"

	"selftrading/src/broker"
	"selftrading/src/model"
)

// metric reads one currency-qualified summary value, preferring the USD
// entry and falling back to the bare tag for currency-less metrics.
func metric(info broker.AccountInformation, tag string) decimal.Decimal {
	for _, key := range []string{tag + " (USD)", tag} {
		if raw, ok := info.Values[key]; ok {
			if v, err := decimal.NewFromString(raw); err == nil {
				return v
			}
		}
	}
	return decimal.Zero
}

func snapshotFromInfo(userID uint, info broker.AccountInformation, now time.Time) *model.AccountSnapshot {
	return &model.AccountSnapshot{
		UserID:             userID,
		Timestamp:          now,
		Account:            info.Account,
		TotalCashValue:     metric(info, "TotalCashValue"),
		NetLiquidation:     metric(info, "NetLiquidation"),
		AvailableFunds:     metric(info, "AvailableFunds"),
		BuyingPower:        metric(info, "BuyingPower"),
		UnrealizedPnl:      metric(info, "UnrealizedPnL"),
		RealizedPnl:        metric(info, "RealizedPnL"),
		ExcessLiquidity:    metric(info, "ExcessLiquidity"),
		GrossPositionValue: metric(info, "GrossPositionValue"),
	}
}

func positionsFromRows(userID uint, rows []broker.PositionRow, now time.Time) []model.OpenPosition {
	positions := make([]model.OpenPosition, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, model.OpenPosition{
			UserID:     userID,
			Symbol:     row.Symbol,
			Quantity:   row.Quantity,
			AvgPrice:   row.AvgCost,
			Account:    row.Account,
			LastUpdate: now,
		})
	}
	return positions
}

// ordersFromTrades maps broker trade rows to order records. Rows without a
// permanent id are dropped: the broker has not durably registered them yet
// and they will reappear on a later pass once it has.
func ordersFromTrades(userID uint, rows []broker.TradeRow) []model.Order {
	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		if row.PermID == 0 {
			continue
		}
		orders = append(orders, model.Order{
			UserID:         userID,
			PermID:         row.PermID,
			Symbol:         row.Symbol,
			Action:         row.Action,
			OrderType:      row.OrderType,
			Quantity:       row.Quantity,
			LimitPrice:     row.LimitPrice,
			StopPrice:      row.StopPrice,
			Status:         row.Status,
			FilledQuantity: row.FilledQuantity,
			AvgFillPrice:   row.AvgFillPrice,
			Account:        row.Account,
		})
	}
	return orders
}

func fillsFromTrades(userID uint, rows []broker.TradeRow) []model.ExecutedTrade {
	var fills []model.ExecutedTrade
	for _, row := range rows {
		if row.PermID == 0 {
			continue
		}
		for _, fill := range row.Fills {
			fills = append(fills, model.ExecutedTrade{
				UserID:    userID,
				PermID:    row.PermID,
				FillTime:  fill.Time,
				Symbol:    row.Symbol,
				Action:    row.Action,
				OrderType: row.OrderType,
				Quantity:  fill.Shares,
				Price:     fill.Price,
				Account:   fill.Account,
			})
		}
	}
	return fills
}
