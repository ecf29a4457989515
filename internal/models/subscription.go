package models

import (
	"time"
)

// Subscription mirrors the payment provider's subscription for one user.
// A missing row means inactive-free. Rows are never hard-deleted; provider
// cancellation sets Status to cancelled.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Tier                   string     `gorm:"size:20;not null;default:'free'" json:"tier"`
	Status                 string     `gorm:"size:20;not null;default:'inactive';index" json:"status"`
	ProviderCustomerID     string     `gorm:"size:255;index" json:"provider_customer_id"`
	ProviderSubscriptionID string     `gorm:"size:255;index" json:"provider_subscription_id"`
	CurrentPeriodStart     *time.Time `json:"current_period_start"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	// TrialGranted guards the one-time trial credit allotment; renewal
	// events for the same subscription must not re-grant it.
	TrialGranted     bool      `gorm:"default:false" json:"-"`
	AnalysesUsed     int       `gorm:"default:0" json:"analyses_used"`
	UsagePeriodStart time.Time `json:"usage_period_start"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
