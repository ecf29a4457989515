package service

import (
	"context"
	"errors"
	"testing"

	"partsight/config"
	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/internal/repository"
	"partsight/pkg/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type downProvider struct{}

func (downProvider) CreateCheckout(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutResult, error) {
	return nil, errors.New("provider down")
}

func (downProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return nil, errors.New("provider down")
}

func (downProvider) VerifyEvent(payload []byte, signature string) (*billing.Event, error) {
	return nil, billing.ErrSignatureInvalid
}

func testConfig() *config.Config {
	return &config.Config{
		Billing: config.BillingConfig{
			Currency:   "usd",
			SuccessURL: "https://example.com/ok",
			CancelURL:  "https://example.com/no",
		},
		Credits: config.CreditsConfig{UnitPriceCents: 50},
	}
}

func newCheckoutFixture(t *testing.T, provider billing.Provider) (*CheckoutService, *repository.CheckoutRepository, *gorm.DB) {
	db := openTestDB(t)
	checkouts := repository.NewCheckoutRepository(db)
	users := repository.NewUserRepository(db)
	return NewCheckoutService(provider, checkouts, users, testConfig()), checkouts, db
}

func TestNormalizePlan(t *testing.T) {
	cases := map[string]string{
		"pro":                     domain.TierPro,
		"Pro":                     domain.TierPro,
		"Professional / Business": domain.TierPro,
		"enterprise":              domain.TierEnterprise,
		"Corporate Plan":          domain.TierEnterprise,
		"Business":                domain.TierEnterprise,
		"free":                    domain.TierFree,
		"Basic":                   domain.TierFree,
		"something else":          domain.TierPro,
		"":                        domain.TierPro,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePlan(in), "plan %q", in)
	}
}

func TestSubscriptionCheckoutPersistsSessionBeforeReturning(t *testing.T) {
	svc, checkouts, db := newCheckoutFixture(t, billing.NewStubProvider())
	u := createMember(t, db, "sub@example.com")

	url, err := svc.CreateSubscriptionCheckout(context.Background(), u.ID, "Professional / Business", 7)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	var sessions []models.CheckoutSession
	require.NoError(t, db.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.CheckoutKindSubscription, sessions[0].Kind)
	assert.Equal(t, domain.CheckoutStatusCreated, sessions[0].Status)
	assert.Equal(t, int64(2900), sessions[0].AmountCents)
	assert.Contains(t, sessions[0].Metadata, `"plan":"pro"`)

	cs, err := checkouts.GetByID(sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, cs.UserID)
}

func TestSubscriptionCheckoutRejectsFreeTier(t *testing.T) {
	svc, _, db := newCheckoutFixture(t, billing.NewStubProvider())
	u := createMember(t, db, "free@example.com")

	_, err := svc.CreateSubscriptionCheckout(context.Background(), u.ID, "free", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreditsCheckoutPricing(t *testing.T) {
	svc, _, db := newCheckoutFixture(t, billing.NewStubProvider())
	u := createMember(t, db, "credits@example.com")

	_, err := svc.CreateCreditsCheckout(context.Background(), u.ID, 40)
	require.NoError(t, err)

	var sessions []models.CheckoutSession
	require.NoError(t, db.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.CheckoutKindCredits, sessions[0].Kind)
	assert.Equal(t, int64(2000), sessions[0].AmountCents)
	assert.Contains(t, sessions[0].Metadata, `"credits":40`)
}

func TestCreditsCheckoutRejectsNonPositiveCount(t *testing.T) {
	svc, _, db := newCheckoutFixture(t, billing.NewStubProvider())
	u := createMember(t, db, "zero@example.com")

	_, err := svc.CreateCreditsCheckout(context.Background(), u.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreateCreditsCheckout(context.Background(), u.ID, -3)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProviderOutageLeavesNoSession(t *testing.T) {
	svc, _, db := newCheckoutFixture(t, downProvider{})
	u := createMember(t, db, "outage@example.com")

	_, err := svc.CreateSubscriptionCheckout(context.Background(), u.ID, "pro", 0)
	assert.ErrorIs(t, err, ErrPaymentUnavailable)

	var count int64
	require.NoError(t, db.Model(&models.CheckoutSession{}).Count(&count).Error)
	assert.Zero(t, count)
}
