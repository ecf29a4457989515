package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"partsight/config"
	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/internal/repository"
	"partsight/pkg/billing"

	"github.com/google/uuid"
)

var (
	// ErrPaymentUnavailable means the payment provider is unreachable or
	// unconfigured; no session row is created.
	ErrPaymentUnavailable = errors.New("payment system unavailable")
	ErrInvalidRequest     = errors.New("invalid request")
)

// planPriceCents is the static monthly pricing table, keyed by canonical
// tier.
var planPriceCents = map[string]int64{
	domain.TierPro:        2900,
	domain.TierEnterprise: 9900,
}

// NormalizePlan maps a free-form plan name onto the canonical tier enum:
// exact match first, then keyword fallback, then pro as the default paid
// plan.
func NormalizePlan(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case domain.TierFree, domain.TierPro, domain.TierEnterprise:
		return n
	}
	if strings.Contains(n, "pro") {
		return domain.TierPro
	}
	if strings.Contains(n, "enterprise") || strings.Contains(n, "corporate") {
		return domain.TierEnterprise
	}
	if strings.Contains(n, "business") {
		return domain.TierEnterprise
	}
	if strings.Contains(n, "free") || strings.Contains(n, "basic") {
		return domain.TierFree
	}
	return domain.TierPro
}

// CheckoutMetadata is persisted on the session row so the webhook
// processor can resolve the intent without trusting provider metadata.
type CheckoutMetadata struct {
	Plan      string `json:"plan,omitempty"`
	Credits   int64  `json:"credits,omitempty"`
	TrialDays int64  `json:"trial_days,omitempty"`
}

type CheckoutService struct {
	provider  billing.Provider
	checkouts *repository.CheckoutRepository
	users     *repository.UserRepository
	cfg       *config.Config
}

func NewCheckoutService(provider billing.Provider, checkouts *repository.CheckoutRepository, users *repository.UserRepository, cfg *config.Config) *CheckoutService {
	return &CheckoutService{provider: provider, checkouts: checkouts, users: users, cfg: cfg}
}

// CreateSubscriptionCheckout opens a provider checkout for a monthly plan.
// The CheckoutSession row is persisted before the URL is returned, so the
// webhook processor can always correlate the completion event even if it
// beats our HTTP response.
func (s *CheckoutService) CreateSubscriptionCheckout(ctx context.Context, userID uint, plan string, trialDays int64) (string, error) {
	tier := NormalizePlan(plan)
	price, ok := planPriceCents[tier]
	if !ok {
		return "", ErrInvalidRequest // free tier has no checkout
	}
	if trialDays < 0 {
		return "", ErrInvalidRequest
	}
	u, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	res, err := s.provider.CreateCheckout(ctx, billing.CheckoutParams{
		UserID:        userID,
		CustomerEmail: u.Email,
		Kind:          domain.CheckoutKindSubscription,
		PlanName:      tier,
		AmountCents:   price,
		Currency:      s.cfg.Billing.Currency,
		TrialDays:     trialDays,
		Reference:     uuid.NewString(),
		SuccessURL:    s.cfg.Billing.SuccessURL,
		CancelURL:     s.cfg.Billing.CancelURL,
	})
	if err != nil {
		log.Printf("[checkout] subscription checkout failed: user=%d plan=%s err=%v", userID, tier, err)
		return "", ErrPaymentUnavailable
	}
	meta, _ := json.Marshal(CheckoutMetadata{Plan: tier, TrialDays: trialDays})
	if err := s.checkouts.Create(&models.CheckoutSession{
		ID:          res.SessionID,
		UserID:      userID,
		Kind:        domain.CheckoutKindSubscription,
		AmountCents: price,
		Currency:    s.cfg.Billing.Currency,
		Status:      domain.CheckoutStatusCreated,
		Metadata:    string(meta),
	}); err != nil {
		return "", err
	}
	return res.URL, nil
}

// CreateCreditsCheckout opens a one-off purchase of creditCount credits at
// the configured unit price.
func (s *CheckoutService) CreateCreditsCheckout(ctx context.Context, userID uint, creditCount int64) (string, error) {
	if creditCount <= 0 {
		return "", ErrInvalidRequest
	}
	u, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	amount := creditCount * s.cfg.Credits.UnitPriceCents
	res, err := s.provider.CreateCheckout(ctx, billing.CheckoutParams{
		UserID:        userID,
		CustomerEmail: u.Email,
		Kind:          domain.CheckoutKindCredits,
		CreditCount:   creditCount,
		AmountCents:   amount,
		Currency:      s.cfg.Billing.Currency,
		Reference:     uuid.NewString(),
		SuccessURL:    s.cfg.Billing.SuccessURL,
		CancelURL:     s.cfg.Billing.CancelURL,
	})
	if err != nil {
		log.Printf("[checkout] credits checkout failed: user=%d count=%d err=%v", userID, creditCount, err)
		return "", ErrPaymentUnavailable
	}
	meta, _ := json.Marshal(CheckoutMetadata{Credits: creditCount})
	if err := s.checkouts.Create(&models.CheckoutSession{
		ID:          res.SessionID,
		UserID:      userID,
		Kind:        domain.CheckoutKindCredits,
		AmountCents: amount,
		Currency:    s.cfg.Billing.Currency,
		Status:      domain.CheckoutStatusCreated,
		Metadata:    string(meta),
	}); err != nil {
		return "", err
	}
	return res.URL, nil
}
