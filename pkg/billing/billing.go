package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotConfigured means no provider credentials are present; callers
	// surface this as payment-system-unavailable.
	ErrNotConfigured = errors.New("billing provider not configured")
	// ErrSignatureInvalid means the webhook payload failed verification
	// against the endpoint secret. Never processed, always rejected.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
)

// CheckoutParams describes an outbound checkout session.
type CheckoutParams struct {
	UserID        uint
	CustomerEmail string
	Kind          string // subscription | credits
	PlanName      string // subscription checkouts
	CreditCount   int64  // credits checkouts
	AmountCents   int64
	Currency      string
	TrialDays     int64
	Reference     string // our correlation ID, stored in provider metadata
	SuccessURL    string
	CancelURL     string
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

// Subscription is the authoritative provider-side subscription state,
// fetched directly rather than trusted from webhook payloads.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string // provider vocabulary: trialing, active, past_due, canceled, ...
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           time.Time
	CancelAtPeriodEnd  bool
}

// Event is a verified webhook event.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Provider abstracts the payment provider so handlers and services never
// touch provider SDK types directly.
type Provider interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
