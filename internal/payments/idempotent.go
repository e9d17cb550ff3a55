package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	redisclient "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const idempotencyScope = "payment"

type intentKeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// IdempotentGateway records the intent produced for each idempotency key and
// answers repeats with the recorded intent instead of re-executing.
type IdempotentGateway struct {
	next  Gateway
	store intentKeyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewIdempotentGateway decorates next with Redis-backed dedupe.
func NewIdempotentGateway(next Gateway, store intentKeyStore, ttl time.Duration, logg *logger.Logger) (*IdempotentGateway, error) {
	if next == nil {
		return nil, errors.New("gateway required")
	}
	if store == nil {
		return nil, errors.New("idempotency store required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotentGateway{next: next, store: store, ttl: ttl, logg: logg}, nil
}

func (g *IdempotentGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	return g.once(ctx, "create", p.IdempotencyKey, func() (*Intent, error) {
		return g.next.CreateIntent(ctx, p)
	})
}

func (g *IdempotentGateway) ConfirmIntent(ctx context.Context, p ConfirmIntentParams) (*Intent, error) {
	return g.once(ctx, "confirm", p.IdempotencyKey, func() (*Intent, error) {
		return g.next.ConfirmIntent(ctx, p)
	})
}

func (g *IdempotentGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	return g.next.RetrieveIntent(ctx, intentID)
}

func (g *IdempotentGateway) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	return g.next.CancelIntent(ctx, intentID)
}

func (g *IdempotentGateway) once(ctx context.Context, op, key string, call func() (*Intent, error)) (*Intent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return call()
	}
	redisKey := g.store.IdempotencyKey(idempotencyScope, op+":"+key)

	recorded, err := g.store.Get(ctx, redisKey)
	switch {
	case err == nil && recorded != "":
		return g.next.RetrieveIntent(ctx, recorded)
	case err != nil && !errors.Is(err, redisclient.ErrNil):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read payment idempotency record")
	}

	intent, err := call()
	if err != nil {
		return nil, err
	}
	if intent != nil && intent.ID != "" {
		// Stripe also dedupes on the key; a lost record is not fatal.
		if _, err := g.store.SetNX(ctx, redisKey, intent.ID, g.ttl); err != nil && g.logg != nil {
			g.logg.Error(g.logg.WithField(ctx, "payment_intent_id", intent.ID), "store payment idempotency record", err)
		}
	}
	return intent, nil
}
