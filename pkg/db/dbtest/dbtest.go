// Package dbtest opens throwaway in-memory SQLite databases carrying the
// storefront schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE users (
		id uuid PRIMARY KEY,
		email text NOT NULL UNIQUE,
		password_hash text NOT NULL,
		first_name text NOT NULL,
		last_name text NOT NULL,
		role text NOT NULL DEFAULT 'customer',
		is_active boolean NOT NULL DEFAULT true,
		last_login_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE products (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		description text,
		image_url text,
		category text NOT NULL,
		price numeric(12,2) NOT NULL,
		stock_quantity integer NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		is_active boolean NOT NULL DEFAULT true,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE orders (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL REFERENCES users(id),
		status text NOT NULL DEFAULT 'PENDING',
		first_name text NOT NULL,
		last_name text NOT NULL,
		email text NOT NULL,
		phone text NOT NULL,
		address text NOT NULL,
		city text NOT NULL,
		state text NOT NULL,
		zip_code text NOT NULL,
		subtotal numeric(12,2) NOT NULL,
		shipping_cost numeric(12,2) NOT NULL,
		tax numeric(12,2) NOT NULL,
		total_amount numeric(12,2) NOT NULL,
		currency text NOT NULL DEFAULT 'usd',
		idempotency_key text,
		payment_intent_id text,
		confirmed_at datetime,
		cancelled_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE UNIQUE INDEX ux_orders_user_idempotency_key ON orders (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE TABLE order_items (
		id uuid PRIMARY KEY,
		order_id uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id uuid NOT NULL REFERENCES products(id),
		product_name text NOT NULL,
		quantity integer NOT NULL,
		unit_price numeric(12,2) NOT NULL,
		subtotal numeric(12,2) NOT NULL,
		created_at datetime
	)`,
	`CREATE TABLE checkout_attempts (
		id uuid PRIMARY KEY,
		session_id text NOT NULL,
		user_id uuid,
		state text NOT NULL,
		idempotency_token text,
		cart_snapshot text,
		client_breakdown text,
		shipping text,
		currency text NOT NULL DEFAULT 'usd',
		order_id uuid,
		payment_intent_id text,
		payment_method_id text,
		charged_amount numeric(12,2),
		failure_kind text,
		failure_message text,
		retries integer NOT NULL DEFAULT 0,
		version integer NOT NULL DEFAULT 0,
		settled_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE outbox_events (
		id uuid PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id uuid NOT NULL,
		payload text NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text,
		parked_at datetime
	)`,
}

// Open returns a fresh database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in the application's db client.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
