package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeProvider implements Provider on top of stripe-go.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider configures the Stripe client. Returns ErrNotConfigured
// when either key is missing so the caller can fall back to the stub.
func NewStripeProvider(secretKey, webhookSecret string) (*StripeProvider, error) {
	if secretKey == "" || webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret}, nil
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, cp CheckoutParams) (*CheckoutResult, error) {
	mode := stripe.CheckoutSessionModePayment
	productName := fmt.Sprintf("%d analysis credits", cp.CreditCount)
	var recurring *stripe.CheckoutSessionLineItemPriceDataRecurringParams
	if cp.Kind == "subscription" {
		mode = stripe.CheckoutSessionModeSubscription
		productName = cp.PlanName + " plan"
		recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String("month"),
		}
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		CustomerEmail:     stripe.String(cp.CustomerEmail),
		ClientReferenceID: stripe.String(cp.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(cp.Currency),
					UnitAmount: stripe.Int64(cp.AmountCents),
					Recurring:  recurring,
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(productName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
	}
	if cp.Kind == "subscription" && cp.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(cp.TrialDays),
		}
	}
	params.AddMetadata("user_id", strconv.FormatUint(uint64(cp.UserID), 10))
	params.AddMetadata("kind", cp.Kind)
	if cp.PlanName != "" {
		params.AddMetadata("plan", cp.PlanName)
	}
	if cp.CreditCount > 0 {
		params.AddMetadata("credits", strconv.FormatInt(cp.CreditCount, 10))
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := subscription.Get(id, nil)
	if err != nil {
		return nil, err
	}
	out := &Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.TrialEnd > 0 {
		out.TrialEnd = time.Unix(sub.TrialEnd, 0)
	}
	return out, nil
}

func (p *StripeProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ErrSignatureInvalid
	}
	return &Event{ID: ev.ID, Type: string(ev.Type), Data: ev.Data.Raw}, nil
}
