package repository

import (
	"errors"
	"time"

	"partsight/internal/domain"
	"partsight/internal/models"

	"gorm.io/gorm"
)

// ErrStaleEvent means an incoming subscription sync carries an older
// billing period than what is stored. Stale syncs are dropped, not applied.
var ErrStaleEvent = errors.New("stale subscription event")

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByUserID returns the user's subscription, or an inactive-free default
// when no row exists.
func (r *SubscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Subscription{
				UserID: userID,
				Tier:   domain.TierFree,
				Status: domain.SubStatusInactive,
			}, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetByProviderSubID(providerSubID string) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SyncFields is the provider-derived state applied by the webhook processor.
type SyncFields struct {
	Tier                   string
	Status                 string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// Upsert applies provider state last-writer-wins, guarded by the billing
// period: an event whose period end is older than the stored one returns
// ErrStaleEvent and writes nothing. Returns the row as stored afterwards.
func (r *SubscriptionRepository) Upsert(userID uint, f SyncFields) (*models.Subscription, error) {
	var out *models.Subscription
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var s models.Subscription
		err := tx.Where("user_id = ?", userID).First(&s).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s = models.Subscription{UserID: userID, UsagePeriodStart: time.Now()}
		} else if s.CurrentPeriodEnd != nil && f.CurrentPeriodEnd != nil &&
			f.CurrentPeriodEnd.Before(*s.CurrentPeriodEnd) {
			return ErrStaleEvent
		}
		s.Tier = f.Tier
		s.Status = f.Status
		s.ProviderCustomerID = f.ProviderCustomerID
		s.ProviderSubscriptionID = f.ProviderSubscriptionID
		s.CurrentPeriodStart = f.CurrentPeriodStart
		s.CurrentPeriodEnd = f.CurrentPeriodEnd
		s.CancelAtPeriodEnd = f.CancelAtPeriodEnd
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		out = &s
		return nil
	})
	return out, err
}

// MarkTrialGranted records that the one-time trial allotment has been
// granted for this subscription.
func (r *SubscriptionRepository) MarkTrialGranted(userID uint) error {
	return r.db.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Update("trial_granted", true).Error
}

// SetStatus updates only the status field, keyed by the provider
// subscription ID (invoice events do not carry our user ID).
func (r *SubscriptionRepository) SetStatus(providerSubID, status string) error {
	return r.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", providerSubID).
		Update("status", status).Error
}

// SetCancelAtPeriodEnd toggles the cancellation flag without touching status.
func (r *SubscriptionRepository) SetCancelAtPeriodEnd(userID uint, cancel bool) error {
	return r.db.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Update("cancel_at_period_end", cancel).Error
}

// HasActiveAccess is the single gate for credit-consuming operations:
// active or trialing with an unexpired period. Fails closed on lookup
// errors.
func (r *SubscriptionRepository) HasActiveAccess(userID uint) bool {
	var s models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return false
	}
	if s.Status != domain.SubStatusActive && s.Status != domain.SubStatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(time.Now())
}

// TierFor returns the tier used for rate limiting; unknown users are free.
func (r *SubscriptionRepository) TierFor(userID uint) string {
	s, err := r.GetByUserID(userID)
	if err != nil {
		return domain.TierFree
	}
	return s.Tier
}

// IncrementUsage bumps the monthly usage counter after a successful
// analysis, resetting it when the stored period start is stale.
func (r *SubscriptionRepository) IncrementUsage(userID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var s models.Subscription
		err := tx.Where("user_id = ?", userID).First(&s).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // free users without a row carry no counters
			}
			return err
		}
		monthStart := time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.UTC)
		if s.UsagePeriodStart.Before(monthStart) {
			s.AnalysesUsed = 0
			s.UsagePeriodStart = monthStart
		}
		s.AnalysesUsed++
		return tx.Save(&s).Error
	})
}
