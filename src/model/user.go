package model

import "time"

// User represents a platform user. A user that has both a broker username
// and a broker password owns one gateway container and one set of
// synchronized trading records.
type User struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Email          string `gorm:"uniqueIndex;not null" json:"email"`
	Username       string `gorm:"uniqueIndex;not null" json:"username"`
	HashedPassword string `gorm:"not null" json:"-"`

	// Optional broker credentials. NULL → read-only user, no gateway.
	BrokerAccountID    string `gorm:"column:ib_account_id" json:"ib_account_id,omitempty"`
	BrokerUsername     string `gorm:"column:ib_username" json:"-"`
	BrokerPasswordHash string `gorm:"column:ib_password;type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for users.
func (User) TableName() string {
	return "users"
}

// HasBrokerCredentials reports whether the user qualifies for a gateway
// container and reconciliation.
func (u *User) HasBrokerCredentials() bool {
	return u.BrokerUsername != "" && u.BrokerPasswordHash != ""
}
