package model

import "time"

// Order statuses as the broker reports them.
const (
	OrderStatusSubmitted = "Submitted"
	OrderStatusFilled    = "Filled"
	OrderStatusCancelled = "Cancelled"
)

// Order mirrors one broker order. Identity is the broker-assigned permanent
// id: the first sighting inserts the row, every later sighting overwrites
// the mutable fields in place. Reconciliation never deletes orders.
type Order struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	PermID int64 `gorm:"column:perm_id;not null;uniqueIndex" json:"perm_id"`

	Symbol     string   `gorm:"not null" json:"symbol"`
	Action     string   `gorm:"not null" json:"action"`
	OrderType  string   `gorm:"not null" json:"order_type"`
	Quantity   float64  `gorm:"not null" json:"quantity"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	StopPrice  *float64 `json:"stop_price,omitempty"`

	Status         string  `json:"status"`
	FilledQuantity float64 `json:"filled_quantity"`
	AvgFillPrice   float64 `json:"avg_fill_price"`

	Account     string    `json:"account"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}

func (Order) TableName() string {
	return "orders"
}
