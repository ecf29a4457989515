package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"partsight/internal/domain"
	"partsight/internal/repository"
	"partsight/pkg/billing"

	"gorm.io/gorm"
)

// BillingService is the webhook event processor: it verifies provider
// events, deduplicates them, and reconciles subscription state and credit
// grants.
//
// Consistency note: subscription upsert and credit grant are a best-effort
// compensating sequence, not one transaction. If a grant fails after the
// upsert committed, the failure is logged and the event is still
// acknowledged. The provider will not redeliver a success it already
// reported, so the two sub-stores are eventually consistent.
type BillingService struct {
	provider  billing.Provider
	subs      *repository.SubscriptionRepository
	credits   *repository.CreditRepository
	checkouts *repository.CheckoutRepository
	events    *repository.WebhookEventRepository
}

func NewBillingService(
	provider billing.Provider,
	subs *repository.SubscriptionRepository,
	credits *repository.CreditRepository,
	checkouts *repository.CheckoutRepository,
	events *repository.WebhookEventRepository,
) *BillingService {
	return &BillingService{provider: provider, subs: subs, credits: credits, checkouts: checkouts, events: events}
}

// errMalformedEvent tags payload defects redelivery cannot cure. Such
// events are recorded as failed and acknowledged rather than redelivered.
var errMalformedEvent = errors.New("malformed event payload")

// HandleEvent verifies and processes one webhook delivery. An event is
// acknowledged once its state transition committed, or when the payload
// is defective in a way redelivery cannot cure. Transient failures before
// the commit return an error so the provider redelivers; a redelivered
// event whose earlier attempt never committed is run again, while
// committed events are dropped as duplicates.
func (s *BillingService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.VerifyEvent(payload, signature)
	if err != nil {
		log.Printf("[webhook] signature verification failed: %v", err)
		return billing.ErrSignatureInvalid
	}
	seen, err := s.events.Record(ev.ID, ev.Type, payload)
	if err != nil {
		log.Printf("[webhook] event record failed: id=%s err=%v", ev.ID, err)
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if seen {
		log.Printf("[webhook] duplicate event ignored: id=%s type=%s", ev.ID, ev.Type)
		return nil
	}

	var perr error
	switch ev.Type {
	case "checkout.session.completed":
		perr = s.onCheckoutCompleted(ctx, ev)
	case "invoice.payment_succeeded":
		perr = s.onInvoicePaid(ctx, ev)
	case "invoice.payment_failed":
		perr = s.onInvoiceFailed(ev)
	case "customer.subscription.deleted":
		perr = s.onSubscriptionDeleted(ev)
	default:
		// Forward-compatibility: unknown kinds are acknowledged and ignored.
		log.Printf("[webhook] unhandled event type: %s", ev.Type)
	}
	if perr != nil {
		switch {
		case errors.Is(perr, repository.ErrStaleEvent):
			log.Printf("[webhook] stale event dropped: id=%s type=%s", ev.ID, ev.Type)
			_ = s.events.MarkProcessed(ev.ID)
			return nil
		case errors.Is(perr, errMalformedEvent):
			log.Printf("[webhook] defective event acknowledged: id=%s type=%s err=%v", ev.ID, ev.Type, perr)
			_ = s.events.MarkFailed(ev.ID, perr)
			return nil
		default:
			log.Printf("[webhook] processing failed, leaving for redelivery: id=%s type=%s err=%v", ev.ID, ev.Type, perr)
			_ = s.events.MarkFailed(ev.ID, perr)
			return perr
		}
	}
	_ = s.events.MarkProcessed(ev.ID)
	return nil
}

// providerID decodes Stripe's expandable fields, which arrive either as a
// bare ID string or as an embedded object with an "id" key. Malformed
// values decode to "".
func providerID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if json.Unmarshal(trimmed, &id) == nil {
			return id
		}
		return ""
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(trimmed, &obj) == nil {
		return obj.ID
	}
	return ""
}

func (s *BillingService) onCheckoutCompleted(ctx context.Context, ev *billing.Event) error {
	var sess struct {
		ID           string          `json:"id"`
		Customer     json.RawMessage `json:"customer"`
		Subscription json.RawMessage `json:"subscription"`
		AmountTotal  int64           `json:"amount_total"`
	}
	if err := json.Unmarshal(ev.Data, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %v: %w", err, errMalformedEvent)
	}
	cs, err := s.checkouts.GetByID(sess.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Session we never created (or another environment's); ack.
			log.Printf("[webhook] unknown checkout session: %s", sess.ID)
			return nil
		}
		return err
	}
	if cs.Status != domain.CheckoutStatusCreated {
		log.Printf("[webhook] checkout session %s already %s", cs.ID, cs.Status)
		return nil
	}
	var meta CheckoutMetadata
	if cs.Metadata != "" {
		_ = json.Unmarshal([]byte(cs.Metadata), &meta)
	}

	switch cs.Kind {
	case domain.CheckoutKindCredits:
		if meta.Credits <= 0 {
			return fmt.Errorf("checkout session %s has no credit count: %w", cs.ID, errMalformedEvent)
		}
		if _, err := s.credits.Credit(cs.UserID, meta.Credits, domain.ReasonPurchase); err != nil {
			return err
		}
		// The grant committed; returning an error here would re-grant on
		// redelivery, so a stuck session row is left for reconciliation.
		if err := s.checkouts.MarkCompleted(cs.ID); err != nil {
			log.Printf("[webhook] checkout session %s: mark completed failed after grant: %v", cs.ID, err)
		}
		return nil

	case domain.CheckoutKindSubscription:
		subID := providerID(sess.Subscription)
		if subID == "" {
			return fmt.Errorf("checkout session %s missing subscription id: %w", cs.ID, errMalformedEvent)
		}
		// The webhook payload is only a hint; the provider's subscription
		// object is authoritative for status and period bounds.
		psub, err := s.provider.GetSubscription(ctx, subID)
		if err != nil {
			return fmt.Errorf("fetch subscription %s: %w", subID, err)
		}
		tier := meta.Plan
		if tier == "" {
			tier = domain.TierPro
		}
		customerID := psub.CustomerID
		if customerID == "" {
			customerID = providerID(sess.Customer)
		}
		if err := s.syncSubscription(cs.UserID, tier, customerID, psub); err != nil {
			return err
		}
		if err := s.checkouts.MarkCompleted(cs.ID); err != nil {
			log.Printf("[webhook] checkout session %s: mark completed failed after sync: %v", cs.ID, err)
		}
		return nil

	default:
		return fmt.Errorf("checkout session %s has unknown kind %q: %w", cs.ID, cs.Kind, errMalformedEvent)
	}
}

// syncSubscription upserts provider state and performs the grant for the
// resulting status: the one-time trial allotment for a first trial, or the
// monthly allotment on activation. Grant failure after a committed upsert
// is logged, not rolled back.
func (s *BillingService) syncSubscription(userID uint, tier, customerID string, psub *billing.Subscription) error {
	status := mapProviderStatus(psub.Status)
	start := psub.CurrentPeriodStart
	end := psub.CurrentPeriodEnd
	stored, err := s.subs.Upsert(userID, repository.SyncFields{
		Tier:                   tier,
		Status:                 status,
		ProviderCustomerID:     customerID,
		ProviderSubscriptionID: psub.ID,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
		CancelAtPeriodEnd:      psub.CancelAtPeriodEnd,
	})
	if err != nil {
		return err
	}

	switch status {
	case domain.SubStatusTrialing:
		if stored.TrialGranted {
			return nil // renewal of a trial never re-grants
		}
		amount := domain.TrialCreditGrant[tier]
		if _, err := s.credits.Credit(userID, amount, domain.ReasonTrial); err != nil {
			log.Printf("[webhook] trial grant failed after subscription upsert: user=%d tier=%s err=%v", userID, tier, err)
			return nil
		}
		if err := s.subs.MarkTrialGranted(userID); err != nil {
			log.Printf("[webhook] trial-granted flag update failed: user=%d err=%v", userID, err)
		}
	case domain.SubStatusActive:
		amount := domain.MonthlyCreditGrant[tier]
		if _, err := s.credits.Credit(userID, amount, domain.ReasonGrant); err != nil {
			log.Printf("[webhook] activation grant failed after subscription upsert: user=%d tier=%s err=%v", userID, tier, err)
		}
	}
	return nil
}

// onInvoicePaid re-syncs the billing period from the provider and grants
// the monthly renewal allotment. Renewal grants are additive to any unused
// balance and are distinct from the one-time trial grant.
func (s *BillingService) onInvoicePaid(ctx context.Context, ev *billing.Event) error {
	var inv struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(ev.Data, &inv); err != nil {
		return fmt.Errorf("decode invoice: %v: %w", err, errMalformedEvent)
	}
	subID := providerID(inv.Subscription)
	if subID == "" {
		log.Printf("[webhook] invoice without subscription; ignoring")
		return nil
	}
	stored, err := s.subs.GetByProviderSubID(subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[webhook] invoice for unknown subscription %s", subID)
			return nil
		}
		return err
	}
	psub, err := s.provider.GetSubscription(ctx, subID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	status := mapProviderStatus(psub.Status)
	start := psub.CurrentPeriodStart
	end := psub.CurrentPeriodEnd
	if _, err := s.subs.Upsert(stored.UserID, repository.SyncFields{
		Tier:                   stored.Tier,
		Status:                 status,
		ProviderCustomerID:     stored.ProviderCustomerID,
		ProviderSubscriptionID: subID,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
		CancelAtPeriodEnd:      psub.CancelAtPeriodEnd,
	}); err != nil {
		return err
	}
	amount := domain.MonthlyCreditGrant[stored.Tier]
	if _, err := s.credits.Credit(stored.UserID, amount, domain.ReasonGrant); err != nil {
		log.Printf("[webhook] renewal grant failed after period sync: user=%d err=%v", stored.UserID, err)
	}
	return nil
}

func (s *BillingService) onInvoiceFailed(ev *billing.Event) error {
	var inv struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(ev.Data, &inv); err != nil {
		return fmt.Errorf("decode invoice: %v: %w", err, errMalformedEvent)
	}
	subID := providerID(inv.Subscription)
	if subID == "" {
		return nil
	}
	return s.subs.SetStatus(subID, domain.SubStatusPastDue)
}

func (s *BillingService) onSubscriptionDeleted(ev *billing.Event) error {
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ev.Data, &sub); err != nil {
		return fmt.Errorf("decode subscription: %v: %w", err, errMalformedEvent)
	}
	if sub.ID == "" {
		return nil
	}
	if err := s.subs.SetStatus(sub.ID, domain.SubStatusCancelled); err != nil {
		return err
	}
	stored, err := s.subs.GetByProviderSubID(sub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.subs.SetCancelAtPeriodEnd(stored.UserID, true)
}

// mapProviderStatus folds the provider's subscription statuses onto ours.
func mapProviderStatus(status string) string {
	switch status {
	case "trialing":
		return domain.SubStatusTrialing
	case "active":
		return domain.SubStatusActive
	case "past_due", "unpaid":
		return domain.SubStatusPastDue
	case "canceled", "cancelled":
		return domain.SubStatusCancelled
	default:
		return domain.SubStatusInactive
	}
}
