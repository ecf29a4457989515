package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Subscription tiers. These are the only canonical tier identifiers;
// plan names coming from checkout metadata are normalized onto them.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Subscription statuses, aligned with the payment provider's vocabulary.
const (
	SubStatusInactive  = "inactive"
	SubStatusTrialing  = "trialing"
	SubStatusActive    = "active"
	SubStatusPastDue   = "past_due"
	SubStatusCancelled = "cancelled"
)

// Checkout session kinds.
const (
	CheckoutKindSubscription = "subscription"
	CheckoutKindCredits      = "credits"
)

// Checkout session statuses. Transitions are forward-only:
// created -> completed | failed.
const (
	CheckoutStatusCreated   = "created"
	CheckoutStatusCompleted = "completed"
	CheckoutStatusFailed    = "failed"
)

// Analysis job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Credit transaction reasons.
const (
	ReasonPurchase       = "purchase"
	ReasonGrant          = "grant"
	ReasonTrial          = "trial"
	ReasonAnalysisDebit  = "analysis-debit"
	ReasonAnalysisRefund = "analysis-refund"
	ReasonAdminGrant     = "admin-grant"
)

// MaxRetries is the hard cap on re-attempts for a failed analysis job.
const MaxRetries = 3

// MonthlyCreditGrant is the allotment granted on activation and on every
// paid renewal, keyed by tier.
var MonthlyCreditGrant = map[string]int64{
	TierFree:       5,
	TierPro:        100,
	TierEnterprise: 500,
}

// TrialCreditGrant is the reduced one-time allotment for a trialing
// subscription.
var TrialCreditGrant = map[string]int64{
	TierFree:       5,
	TierPro:        25,
	TierEnterprise: 100,
}

// TierRequestsPerMinute caps analysis submissions per user per minute.
var TierRequestsPerMinute = map[string]int{
	TierFree:       30,
	TierPro:        120,
	TierEnterprise: 300,
}
