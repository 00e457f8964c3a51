package model

import "time"

// OpenPosition is one row of a user's current broker position set. The set
// is replaced wholesale on every refresh, never merged.
type OpenPosition struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Symbol     string    `gorm:"not null" json:"symbol"`
	Quantity   float64   `gorm:"not null" json:"quantity"`
	AvgPrice   float64   `gorm:"not null" json:"avg_price"`
	Account    string    `gorm:"not null" json:"account"`
	LastUpdate time.Time `json:"last_update"`
}

func (OpenPosition) TableName() string {
	return "open_positions"
}
