package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"selftrading/src/model"
)

func TestOrderUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	batch := []model.Order{
		{
			UserID:    1,
			PermID:    1001,
			Symbol:    "AAPL",
			Action:    "BUY",
			OrderType: "LMT",
			Quantity:  10,
			Status:    model.OrderStatusSubmitted,
		},
		{
			UserID:     1,
			PermID:     1002,
			Symbol:     "NVDA",
			Action:     "SELL",
			OrderType:  "LMT",
			Quantity:   5,
			LimitPrice: ptrFloat(120.50),
			Status:     model.OrderStatusSubmitted,
		},
	}

	require.NoError(t, repo.Upsert(ctx, batch))
	require.NoError(t, repo.Upsert(ctx, batch))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestOrderUpsertUpdatesStatusInPlace(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []model.Order{{
		UserID:    1,
		PermID:    1001,
		Symbol:    "AAPL",
		Action:    "BUY",
		OrderType: "LMT",
		Quantity:  10,
		Status:    model.OrderStatusSubmitted,
	}}))

	// Same permanent id observed again, now partially reported as filled.
	require.NoError(t, repo.Upsert(ctx, []model.Order{{
		UserID:         1,
		PermID:         1001,
		Symbol:         "AAPL",
		Action:         "BUY",
		OrderType:      "LMT",
		Quantity:       10,
		Status:         model.OrderStatusFilled,
		FilledQuantity: 10,
		AvgFillPrice:   187.32,
	}}))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	order, err := repo.FindByPermID(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, model.OrderStatusFilled, order.Status)
	require.Equal(t, 10.0, order.FilledQuantity)
	require.Equal(t, 187.32, order.AvgFillPrice)
}

func TestOrderFindByPermIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)

	order, err := repo.FindByPermID(context.Background(), 999999)
	require.NoError(t, err)
	require.Nil(t, order)
}

func TestOrderUpsertEmptyBatchIsNoop(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)

	require.NoError(t, repo.Upsert(context.Background(), nil))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}
