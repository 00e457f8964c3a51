package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"selftrading/src/database"
	"selftrading/src/model"
)

// SnapshotRepository handles persistence for daily account snapshots.
// Snapshots are insert-once: the scheduler checks FindToday before creating
// and never updates an existing row.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new repository instance using the main database.
func NewSnapshotRepository() *SnapshotRepository {
	logger.WithField("component", "SnapshotRepository").
		Info("Creating new SnapshotRepository with MainDB")

	return &SnapshotRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// FindToday returns the user's snapshot for the calendar day containing
// `now`, or (nil, nil) if none exists yet. The day boundary is the server's
// local midnight, matching the trading-day boundary of the gateway host,
// not a UTC-only date comparison.
func (r *SnapshotRepository) FindToday(ctx context.Context, userID uint, now time.Time) (*model.AccountSnapshot, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var snap model.AccountSnapshot

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, dayStart, dayEnd).
		First(&snap).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "SnapshotRepository",
			"op":      "FindToday",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch today's snapshot")

		return nil, err
	}

	return &snap, nil
}

// Create inserts a new daily snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, snap *model.AccountSnapshot) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "SnapshotRepository",
		"op":      "Create",
		"user_id": snap.UserID,
		"account": snap.Account,
	}).Debug("Creating account snapshot")

	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "SnapshotRepository",
			"op":      "Create",
			"user_id": snap.UserID,
		}).WithError(err).Error("Failed to create account snapshot")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SnapshotRepository",
		"op":          "Create",
		"user_id":     snap.UserID,
		"snapshot_id": snap.ID,
	}).Info("Account snapshot created")

	return nil
}
