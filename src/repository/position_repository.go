package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"selftrading/src/database"
	"selftrading/src/model"
)

// PositionRepository handles the open-position set for a user. The set is
// replaced wholesale: the previous rows are deleted before the new ones are
// inserted, inside one transaction.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// ReplaceAll discards the user's previous position set and stores the given
// one. An empty slice clears the set.
func (r *PositionRepository) ReplaceAll(ctx context.Context, userID uint, positions []model.OpenPosition) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "ReplaceAll",
		"user_id": userID,
		"rows":    len(positions),
	}).Debug("Replacing open positions")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).
			Delete(&model.OpenPosition{}).Error; err != nil {
			return err
		}

		if len(positions) == 0 {
			return nil
		}

		for i := range positions {
			positions[i].UserID = userID
		}

		return tx.Create(&positions).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "ReplaceAll",
			"user_id": userID,
		}).WithError(err).Error("Failed to replace open positions")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "ReplaceAll",
		"user_id": userID,
		"rows":    len(positions),
	}).Info("Open positions replaced")

	return nil
}

// FindByUser returns the user's current open-position set.
func (r *PositionRepository) FindByUser(ctx context.Context, userID uint) ([]model.OpenPosition, error) {
	var positions []model.OpenPosition

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch open positions")

		return nil, err
	}

	return positions, nil
}
