package models

import (
	"time"
)

// CreditBalance is the authoritative per-user credit balance. It is mutated
// only through CreditRepository's atomic operations; the balance can never
// go negative.
type CreditBalance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}

// CreditTransaction is an immutable append-only ledger entry. Every balance
// mutation writes exactly one row in the same database transaction, so the
// running sum of Delta always equals the current balance.
type CreditTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Delta        int64     `gorm:"not null" json:"delta"` // positive = credit, negative = debit
	Reason       string    `gorm:"size:32;not null;index" json:"reason"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
