package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"selftrading/src/model"
)

func TestPositionReplaceAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, 1, []model.OpenPosition{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: 180, Account: "DU123456"},
		{Symbol: "NVDA", Quantity: 5, AvgPrice: 110, Account: "DU123456"},
		{Symbol: "TSLA", Quantity: 2, AvgPrice: 240, Account: "DU123456"},
	}))

	positions, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, positions, 3)

	// Refresh with a smaller set: the old rows must be gone entirely.
	require.NoError(t, repo.ReplaceAll(ctx, 1, []model.OpenPosition{
		{Symbol: "AAPL", Quantity: 12, AvgPrice: 181, Account: "DU123456"},
		{Symbol: "PLTR", Quantity: 50, AvgPrice: 25, Account: "DU123456"},
	}))

	positions, err = repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	require.Equal(t, "AAPL", positions[0].Symbol)
	require.Equal(t, 12.0, positions[0].Quantity)
	require.Equal(t, "PLTR", positions[1].Symbol)
}

func TestPositionReplaceAllEmptySetClears(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, 1, []model.OpenPosition{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: 180, Account: "DU123456"},
	}))

	require.NoError(t, repo.ReplaceAll(ctx, 1, nil))

	positions, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestPositionReplaceAllLeavesOtherUsersAlone(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, 1, []model.OpenPosition{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: 180, Account: "DU1"},
	}))
	require.NoError(t, repo.ReplaceAll(ctx, 2, []model.OpenPosition{
		{Symbol: "NVDA", Quantity: 5, AvgPrice: 110, Account: "DU2"},
	}))

	require.NoError(t, repo.ReplaceAll(ctx, 1, nil))

	positions, err := repo.FindByUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "NVDA", positions[0].Symbol)
}
