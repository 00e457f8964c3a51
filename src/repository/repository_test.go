package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"selftrading/src/model"
)

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.AccountSnapshot{},
		&model.OpenPosition{},
		&model.Order{},
		&model.ExecutedTrade{},
	)
	if err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func ptrFloat(v float64) *float64 { return &v }
