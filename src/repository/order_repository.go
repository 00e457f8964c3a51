package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"selftrading/src/database"
	"selftrading/src/model"
)

// orderMutableColumns are the fields overwritten when an order is observed
// again under the same permanent id. Identity columns (perm_id, user_id)
// and created_at are never touched.
var orderMutableColumns = []string{
	"symbol",
	"action",
	"order_type",
	"quantity",
	"limit_price",
	"stop_price",
	"status",
	"filled_quantity",
	"avg_fill_price",
	"account",
	"last_updated",
}

// OrderRepository handles persistence for broker orders keyed by their
// permanent id.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Upsert stores the given broker-reported orders: rows are inserted on
// first sight of a permanent id and updated in place on every later sight.
// Applying the same batch twice leaves the table in an identical state.
// Orders without a permanent id must be filtered out by the caller.
func (r *OrderRepository) Upsert(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "Upsert",
		"rows": len(orders),
	}).Debug("Upserting orders")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "perm_id"}},
			DoUpdates: clause.AssignmentColumns(orderMutableColumns),
		}).
		Create(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Upsert",
			"rows": len(orders),
		}).WithError(err).Error("Failed to upsert orders")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "Upsert",
		"rows": len(orders),
	}).Info("Orders synchronized")

	return nil
}

// FindByPermID fetches an order by its broker permanent id.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByPermID(ctx context.Context, permID int64) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("perm_id = ?", permID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":    "OrderRepository",
				"op":      "FindByPermID",
				"perm_id": permID,
			}).Info("Order not found by permanent id")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "FindByPermID",
			"perm_id": permID,
		}).WithError(err).Error("Failed to fetch order by permanent id")

		return nil, err
	}

	return &order, nil
}

// FindByUser returns all of a user's orders, newest first.
func (r *OrderRepository) FindByUser(ctx context.Context, userID uint) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch orders for user")

		return nil, err
	}

	return orders, nil
}
