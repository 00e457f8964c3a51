package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"selftrading/src/database"
	"selftrading/src/model"
)

// tradeMutableColumns are the fields overwritten if a fill is re-observed
// under the same (perm_id, fill_time). Fills are immutable once reported,
// so in practice these assignments are no-ops; the conflict clause exists
// to guarantee the batch never duplicates rows.
var tradeMutableColumns = []string{
	"symbol",
	"action",
	"order_type",
	"quantity",
	"price",
	"account",
}

// TradeRepository handles persistence for executed trades (fills), keyed by
// the composite (permanent order id, fill time).
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main database.
func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Upsert stores the given broker-reported fills. Distinct fills for the
// same order land as distinct rows; re-observed fills update in place, so
// applying the same batch twice never accumulates duplicates.
func (r *TradeRepository) Upsert(ctx context.Context, trades []model.ExecutedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository",
		"op":   "Upsert",
		"rows": len(trades),
	}).Debug("Upserting executed trades")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "perm_id"}, {Name: "fill_time"}},
			DoUpdates: clause.AssignmentColumns(tradeMutableColumns),
		}).
		Create(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "Upsert",
			"rows": len(trades),
		}).WithError(err).Error("Failed to upsert executed trades")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository",
		"op":   "Upsert",
		"rows": len(trades),
	}).Info("Executed trades synchronized")

	return nil
}

// FindByUser returns all of a user's fills, newest first.
func (r *TradeRepository) FindByUser(ctx context.Context, userID uint) ([]model.ExecutedTrade, error) {
	var trades []model.ExecutedTrade

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("fill_time DESC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "TradeRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch executed trades for user")

		return nil, err
	}

	return trades, nil
}
