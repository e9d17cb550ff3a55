package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrNotFound means the session expired, was revoked or never existed.
var ErrNotFound = errors.New("session not found")

// Session is the authenticated shopper context. It is created at login,
// looked up on every authenticated request and torn down at logout.
type Session struct {
	ID        string         `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Email     string         `json:"email"`
	Role      enums.UserRole `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Store is the slice of the redis client sessions need.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Lookup is what request middleware needs.
type Lookup interface {
	Get(ctx context.Context, accessID string) (*Session, error)
}

// Manager keeps one redis entry per access token, keyed by its jti. The entry
// TTL matches the token lifetime so logout can end a session early.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Create stores a session for the user. An empty role is a customer.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, email string, role enums.UserRole, now time.Time) (*Session, error) {
	if userID == uuid.Nil {
		return nil, errors.New("user id is required")
	}
	if role == "" {
		role = enums.UserRoleCustomer
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	now = now.UTC()
	sess := &Session{
		ID:        NewAccessID(),
		UserID:    userID,
		Email:     strings.TrimSpace(email),
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(sess.ID), string(raw), m.ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Get loads the session for accessID. A stored session past its expiry is
// reported as ErrNotFound even if redis has not evicted it yet.
func (m *Manager) Get(ctx context.Context, accessID string) (*Session, error) {
	key, err := m.key(accessID)
	if err != nil {
		return nil, err
	}
	raw, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && !m.now().Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Revoke is idempotent; revoking a missing session is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", errors.New("access id is required")
	}
	return m.store.AccessSessionKey(accessID), nil
}

// NewAccessID returns the identifier shared by the token jti and the redis key.
func NewAccessID() string {
	return uuid.NewString()
}
