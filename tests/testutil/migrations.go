package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the retry schema on the test database. Kept inline so
// tests do not depend on the migration file location; the migrator binary
// runs the real files.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		total BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS order_notes (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		note TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		status TEXT NOT NULL,
		manual_renewal BOOLEAN NOT NULL DEFAULT FALSE,
		payment_method TEXT NOT NULL DEFAULT '',
		payment_meta_hash TEXT NOT NULL DEFAULT '',
		capabilities TEXT[] NOT NULL DEFAULT '{}',
		next_retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS subscription_notes (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
		note TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS subscription_orders (
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		PRIMARY KEY (subscription_id, order_id)
	);

	CREATE TABLE IF NOT EXISTS retries (
		retry_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		order_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		date_gmt TIMESTAMPTZ NOT NULL,
		rule_raw TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS legacy_retries (
		entry_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		entry_type TEXT NOT NULL,
		parent_order_id BIGINT NOT NULL,
		entry_status TEXT NOT NULL,
		scheduled_at_local TIMESTAMP NOT NULL,
		scheduled_at_gmt TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS legacy_retry_meta (
		meta_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		entry_id BIGINT NOT NULL REFERENCES legacy_retries(entry_id) ON DELETE CASCADE,
		meta_key TEXT NOT NULL,
		meta_value TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS retry_migration_state (
		state_key TEXT PRIMARY KEY,
		state_value BOOLEAN NOT NULL
	);
	`

	_, err := pool.Exec(ctx, schema)
	return err
}

// TruncateAll truncates all retry tables
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	tables := []string{
		"legacy_retry_meta", "legacy_retries", "retries", "retry_migration_state",
		"subscription_orders", "subscription_notes", "subscriptions", "order_notes", "orders",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return err
		}
	}
	return nil
}

// AssertDBCount asserts the expected count of rows in a table
func AssertDBCount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string, expected int) {
	var count int
	err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	if count != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, count)
	}
}
