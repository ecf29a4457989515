package models

import (
	"time"
)

// CheckoutSession records an outbound provider checkout so the webhook
// processor can correlate an event back to the user and intent. The row is
// persisted before the checkout URL is handed to the caller; webhooks can
// arrive before the HTTP response does.
type CheckoutSession struct {
	ID          string    `gorm:"primaryKey;size:255" json:"id"` // provider-assigned session ID
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Kind        string    `gorm:"size:20;not null" json:"kind"` // subscription | credits
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"size:3;not null" json:"currency"`
	Status      string    `gorm:"size:20;not null;index" json:"status"` // created -> completed | failed
	Metadata    string    `gorm:"type:text" json:"metadata"`            // JSON: plan or credit count
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}
