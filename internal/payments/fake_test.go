package payments

import (
	"context"
	"fmt"
	"sync"
)

type fakeGateway struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	seq      int
	status   func(ConfirmIntentParams) *Intent
	err      error
	creates  int
	confirms int
	keys     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*Intent{}}
}

func (f *fakeGateway) nextID() string {
	f.seq++
	return fmt.Sprintf("pi_%d", f.seq)
}

func (f *fakeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.keys = append(f.keys, p.IdempotencyKey)
	if f.err != nil {
		return nil, f.err
	}
	id := f.nextID()
	intent := &Intent{ID: id, AmountMinor: MinorUnits(p.Amount), Currency: p.Currency, Status: "requires_payment_method", ClientSecret: id + "_secret", Metadata: p.Metadata}
	f.intents[id] = intent
	return intent, nil
}

func (f *fakeGateway) ConfirmIntent(ctx context.Context, p ConfirmIntentParams) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	f.keys = append(f.keys, p.IdempotencyKey)
	if f.err != nil {
		return nil, f.err
	}
	intent := &Intent{ID: p.IntentID, AmountMinor: MinorUnits(p.Amount), Currency: p.Currency, Status: "succeeded", Metadata: p.Metadata}
	if f.status != nil {
		intent = f.status(p)
	}
	if intent.ID == "" {
		intent.ID = f.nextID()
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, &Error{Op: "retrieve", Reason: "no such payment_intent"}
	}
	return intent, nil
}

func (f *fakeGateway) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, &Error{Op: "cancel", Reason: "no such payment_intent"}
	}
	intent.Status = "canceled"
	return intent, nil
}
