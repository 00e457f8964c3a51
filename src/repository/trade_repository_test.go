package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"selftrading/src/model"
)

func TestTradeUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewTradeRepository().WithDB(db)
	ctx := context.Background()

	fillTime := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	// Two partial fills of the same order, distinct fill times.
	batch := []model.ExecutedTrade{
		{
			UserID:    1,
			PermID:    1001,
			FillTime:  fillTime,
			Symbol:    "AAPL",
			Action:    "BUY",
			OrderType: "LMT",
			Quantity:  6,
			Price:     187.30,
			Account:   "DU123456",
		},
		{
			UserID:    1,
			PermID:    1001,
			FillTime:  fillTime.Add(3 * time.Second),
			Symbol:    "AAPL",
			Action:    "BUY",
			OrderType: "LMT",
			Quantity:  4,
			Price:     187.35,
			Account:   "DU123456",
		},
	}

	require.NoError(t, repo.Upsert(ctx, batch))
	require.NoError(t, repo.Upsert(ctx, batch))

	var count int64
	require.NoError(t, db.Model(&model.ExecutedTrade{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	fills, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fills, 2)
}

func TestTradeUpsertKeepsDistinctOrdersApart(t *testing.T) {
	db := newTestDB(t)
	repo := NewTradeRepository().WithDB(db)
	ctx := context.Background()

	fillTime := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	// Same fill time on two different orders must land as two rows.
	require.NoError(t, repo.Upsert(ctx, []model.ExecutedTrade{
		{UserID: 1, PermID: 1001, FillTime: fillTime, Symbol: "AAPL", Quantity: 1, Price: 187},
		{UserID: 1, PermID: 1002, FillTime: fillTime, Symbol: "NVDA", Quantity: 1, Price: 120},
	}))

	var count int64
	require.NoError(t, db.Model(&model.ExecutedTrade{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}
