package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// schemaVersion tags the persisted cart envelope.
const schemaVersion = 1

// ErrCorruptCart marks a persisted cart that cannot be decoded.
var ErrCorruptCart = errors.New("persisted cart is unreadable")

type kvStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type cartKeyer interface {
	CartKey(sessionID string) string
}

type envelope struct {
	Version int              `json:"version"`
	Items   []types.CartLine `json:"items"`
}

// Repository persists whole carts in Redis, one key per session.
type Repository struct {
	store kvStore
	keyer cartKeyer
	ttl   time.Duration
}

// NewRepository builds a Redis-backed cart repository. ttl bounds how long an
// idle cart survives; zero keeps it until deleted.
func NewRepository(store kvStore, keyer cartKeyer, ttl time.Duration) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if keyer == nil {
		return nil, fmt.Errorf("cart keyer required")
	}
	return &Repository{store: store, keyer: keyer, ttl: ttl}, nil
}

// Load returns the session's cart, or an empty cart when none is persisted.
func (r *Repository) Load(ctx context.Context, sessionID string) (*Cart, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	raw, err := r.store.Get(ctx, r.keyer.CartKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return &Cart{SessionID: sessionID, Items: []types.CartLine{}}, nil
		}
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCart, err)
	}
	if env.Version != schemaVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptCart, env.Version)
	}
	if env.Items == nil {
		env.Items = []types.CartLine{}
	}
	return &Cart{SessionID: sessionID, Items: env.Items}, nil
}

// Save overwrites the persisted cart with c.
func (r *Repository) Save(ctx context.Context, c *Cart) error {
	if c == nil || strings.TrimSpace(c.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	items := c.Items
	if items == nil {
		items = []types.CartLine{}
	}
	payload, err := json.Marshal(envelope{Version: schemaVersion, Items: items})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return r.store.Set(ctx, r.keyer.CartKey(c.SessionID), string(payload), r.ttl)
}

// Delete drops the persisted cart.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return r.store.Del(ctx, r.keyer.CartKey(sessionID))
}
