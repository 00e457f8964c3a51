package model

import "time"

// ExecutedTrade is one fill against an order. Several fills may belong to
// one permanent order id (partial execution), so identity is the composite
// (perm_id, fill_time) key.
type ExecutedTrade struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	PermID   int64     `gorm:"column:perm_id;not null;uniqueIndex:uix_perm_id_fill_time" json:"perm_id"`
	FillTime time.Time `gorm:"not null;uniqueIndex:uix_perm_id_fill_time" json:"fill_time"`

	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	OrderType string  `json:"order_type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Account   string  `json:"account"`

	CreatedAt time.Time `json:"created_at"`
}

func (ExecutedTrade) TableName() string {
	return "executed_trades"
}
