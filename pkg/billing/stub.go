package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StubSignature is the only signature the stub accepts.
const StubSignature = "stub-signature"

// StubProvider is a no-op provider for development and tests. Webhook
// payloads are taken at face value after a fixed signature check;
// subscriptions are served from the in-memory map.
type StubProvider struct {
	Subscriptions map[string]*Subscription
}

func NewStubProvider() *StubProvider {
	return &StubProvider{Subscriptions: make(map[string]*Subscription)}
}

func (s *StubProvider) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	id := fmt.Sprintf("cs_stub_%d_%d", time.Now().UnixNano(), p.UserID)
	return &CheckoutResult{
		SessionID: id,
		URL:       "https://checkout.stub/" + id,
	}, nil
}

func (s *StubProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if sub, ok := s.Subscriptions[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("stub: no such subscription %s", id)
}

func (s *StubProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if signature != StubSignature {
		return nil, ErrSignatureInvalid
	}
	var ev struct {
		ID   string          `json:"id"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, ErrSignatureInvalid
	}
	return &Event{ID: ev.ID, Type: ev.Type, Data: ev.Data}, nil
}
