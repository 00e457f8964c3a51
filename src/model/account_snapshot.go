package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is a once-per-day capture of the broker account summary.
// At most one row may exist per (user, calendar date); the scheduler checks
// before inserting and never updates an existing row.
type AccountSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Account   string    `gorm:"not null" json:"account"`

	TotalCashValue     decimal.Decimal `gorm:"type:numeric" json:"total_cash_value"`
	NetLiquidation     decimal.Decimal `gorm:"type:numeric" json:"net_liquidation"`
	AvailableFunds     decimal.Decimal `gorm:"type:numeric" json:"available_funds"`
	BuyingPower        decimal.Decimal `gorm:"type:numeric" json:"buying_power"`
	UnrealizedPnl      decimal.Decimal `gorm:"type:numeric" json:"unrealized_pnl"`
	RealizedPnl        decimal.Decimal `gorm:"type:numeric" json:"realized_pnl"`
	ExcessLiquidity    decimal.Decimal `gorm:"type:numeric" json:"excess_liquidity"`
	GrossPositionValue decimal.Decimal `gorm:"type:numeric" json:"gross_position_value"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}
