package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"selftrading/src/database"
	"selftrading/src/model"
)

// UserRepository is the read-only credential directory: it answers which
// users currently have broker credentials on file.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository instance using the main database.
func NewUserRepository() *UserRepository {
	logger.WithField("component", "UserRepository").
		Info("Creating new UserRepository with MainDB")

	return &UserRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *UserRepository) WithDB(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindWithBrokerCredentials returns every user that has both a broker
// username and password set. This is the credentialed-tenant set that both
// loops derive their work from each cycle.
func (r *UserRepository) FindWithBrokerCredentials(ctx context.Context) ([]model.User, error) {
	var users []model.User

	err := r.db.WithContext(ctx).
		Where("ib_username IS NOT NULL AND ib_username <> ''").
		Where("ib_password IS NOT NULL AND ib_password <> ''").
		Order("id ASC").
		Find(&users).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "UserRepository",
			"op":   "FindWithBrokerCredentials",
		}).WithError(err).Error("Failed to fetch users with broker credentials")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "UserRepository",
		"op":          "FindWithBrokerCredentials",
		"rows_return": len(users),
	}).Debug("Users with broker credentials fetched")

	return users, nil
}

// FindByID fetches a single user by its primary ID.
// Returns (nil, nil) if the user is not found.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User

	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "UserRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("User not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "UserRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch user by ID")

		return nil, err
	}

	return &user, nil
}
