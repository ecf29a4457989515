package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/internal/repository"
	"partsight/pkg/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type billingFixture struct {
	db       *gorm.DB
	stub     *billing.StubProvider
	svc      *BillingService
	credits  *repository.CreditRepository
	subs     *repository.SubscriptionRepository
	checkout *repository.CheckoutRepository
	events   *repository.WebhookEventRepository
}

func newBillingFixture(t *testing.T) *billingFixture {
	db := openTestDB(t)
	stub := billing.NewStubProvider()
	credits := repository.NewCreditRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	checkout := repository.NewCheckoutRepository(db)
	events := repository.NewWebhookEventRepository(db)
	return &billingFixture{
		db:       db,
		stub:     stub,
		svc:      NewBillingService(stub, subs, credits, checkout, events),
		credits:  credits,
		subs:     subs,
		checkout: checkout,
		events:   events,
	}
}

func (f *billingFixture) deliver(t *testing.T, eventID, eventType, data string) error {
	t.Helper()
	payload := fmt.Sprintf(`{"id":%q,"type":%q,"data":%s}`, eventID, eventType, data)
	return f.svc.HandleEvent(context.Background(), []byte(payload), billing.StubSignature)
}

func (f *billingFixture) createSession(t *testing.T, id string, userID uint, kind string, meta CheckoutMetadata) {
	t.Helper()
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, f.checkout.Create(&models.CheckoutSession{
		ID:       id,
		UserID:   userID,
		Kind:     kind,
		Currency: "usd",
		Status:   domain.CheckoutStatusCreated,
		Metadata: string(raw),
	}))
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	f := newBillingFixture(t)
	err := f.svc.HandleEvent(context.Background(), []byte(`{"id":"evt_1","type":"x","data":{}}`), "wrong")
	assert.ErrorIs(t, err, billing.ErrSignatureInvalid)
}

func TestHandleEventAcksUnknownType(t *testing.T) {
	f := newBillingFixture(t)
	require.NoError(t, f.deliver(t, "evt_1", "customer.updated", `{}`))
}

func TestCreditsCheckoutCompletedGrantsOnce(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "buyer@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindCredits, CheckoutMetadata{Credits: 20})

	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","amount_total":1000}`))

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal)

	cs, err := f.checkout.GetByID("cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)

	// redelivery of the same event is a no-op
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","amount_total":1000}`))
	// a fresh event for the already-completed session grants nothing either
	require.NoError(t, f.deliver(t, "evt_2", "checkout.session.completed", `{"id":"cs_1","amount_total":1000}`))

	bal, err = f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal)
}

func TestSubscriptionCheckoutTrialGrantsOnce(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "trial@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierPro, TrialDays: 7})
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             "trialing",
		CurrentPeriodStart: time.Now(),
		CurrentPeriodEnd:   time.Now().Add(7 * 24 * time.Hour),
	}

	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1","customer":"cus_1"}`))

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialCreditGrant[domain.TierPro], bal)

	sub, err := f.subs.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubStatusTrialing, sub.Status)
	assert.Equal(t, domain.TierPro, sub.Tier)
	assert.True(t, sub.TrialGranted)
	assert.True(t, f.subs.HasActiveAccess(u.ID))
}

func TestRenewalGrantIsAdditive(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "renew@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierPro})
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             "active",
		CurrentPeriodStart: time.Now(),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))

	monthly := domain.MonthlyCreditGrant[domain.TierPro]
	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, monthly, bal)

	// next billing period: unused credits carry over, renewal adds on top
	f.stub.Subscriptions["sub_1"].CurrentPeriodStart = time.Now().Add(30 * 24 * time.Hour)
	f.stub.Subscriptions["sub_1"].CurrentPeriodEnd = time.Now().Add(60 * 24 * time.Hour)
	require.NoError(t, f.deliver(t, "evt_2", "invoice.payment_succeeded", `{"subscription":"sub_1"}`))

	bal, err = f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*monthly, bal)
}

func TestStaleInvoiceEventIsDropped(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "stale@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierPro})
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: time.Now().Add(60 * 24 * time.Hour),
	}
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))
	balBefore, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)

	// out-of-order delivery for an earlier period
	f.stub.Subscriptions["sub_1"].CurrentPeriodEnd = time.Now().Add(-24 * time.Hour)
	f.stub.Subscriptions["sub_1"].Status = "canceled"
	require.NoError(t, f.deliver(t, "evt_2", "invoice.payment_succeeded", `{"subscription":"sub_1"}`))

	sub, err := f.subs.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubStatusActive, sub.Status, "stale event must not regress status")

	balAfter, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, balBefore, balAfter, "stale event must not grant")
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "pastdue@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierPro})
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))

	require.NoError(t, f.deliver(t, "evt_2", "invoice.payment_failed", `{"subscription":"sub_1"}`))

	sub, err := f.subs.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubStatusPastDue, sub.Status)
	assert.False(t, f.subs.HasActiveAccess(u.ID))
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "cancel@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierEnterprise})
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))

	require.NoError(t, f.deliver(t, "evt_2", "customer.subscription.deleted", `{"id":"sub_1"}`))

	sub, err := f.subs.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubStatusCancelled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestUnknownCheckoutSessionIsAcked(t *testing.T) {
	f := newBillingFixture(t)
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_other_env"}`))
}

func TestRecordFailurePropagatesForRedelivery(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "lost@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindCredits, CheckoutMetadata{Credits: 20})
	require.NoError(t, f.db.Exec("DROP TABLE webhook_events").Error)

	err := f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","amount_total":1000}`)
	require.Error(t, err, "a delivery we could not record must not be acknowledged")
	assert.NotErrorIs(t, err, billing.ErrSignatureInvalid)

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestTransientFailureLeavesEventRedeliverable(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "flaky@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindSubscription, CheckoutMetadata{Plan: domain.TierPro})

	// the provider lookup fails on the first delivery
	err := f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`)
	require.Error(t, err)

	ev, err := f.events.GetByEventID("evt_1")
	require.NoError(t, err)
	assert.Nil(t, ev.ProcessedAt)

	cs, err := f.checkout.GetByID("cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCreated, cs.Status, "nothing committed on the failed attempt")

	// redelivery after the provider recovers completes the session once
	f.stub.Subscriptions["sub_1"] = &billing.Subscription{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		Status:             "active",
		CurrentPeriodStart: time.Now(),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))

	bal, err := f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MonthlyCreditGrant[domain.TierPro], bal)

	cs, err = f.checkout.GetByID("cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, cs.Status)

	// a further redelivery is now a duplicate
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","subscription":"sub_1"}`))
	bal, err = f.credits.GetBalance(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MonthlyCreditGrant[domain.TierPro], bal)
}

func TestDefectivePayloadIsAckedNotRedelivered(t *testing.T) {
	f := newBillingFixture(t)
	u := createMember(t, f.db, "defect@example.com")
	f.createSession(t, "cs_1", u.ID, domain.CheckoutKindCredits, CheckoutMetadata{})

	// a session without a credit count cannot be cured by redelivery
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1"}`))

	ev, err := f.events.GetByEventID("evt_1")
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ProcessingError)
}
