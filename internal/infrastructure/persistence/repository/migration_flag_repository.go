package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const needsMigrationKey = "retries_needs_migration"

// MigrationFlagRepositoryImpl persists the "needs migration" flag in the
// retry_migration_state table. A missing row reads as false.
type MigrationFlagRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewMigrationFlagRepository creates a new migration flag repository.
func NewMigrationFlagRepository(pool *pgxpool.Pool) *MigrationFlagRepositoryImpl {
	return &MigrationFlagRepositoryImpl{pool: pool}
}

// NeedsMigration reads the flag.
func (r *MigrationFlagRepositoryImpl) NeedsMigration(ctx context.Context) (bool, error) {
	var value bool
	err := r.pool.QueryRow(ctx,
		`SELECT state_value FROM retry_migration_state WHERE state_key = $1`,
		needsMigrationKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return value, err
}

// SetNeedsMigration writes the flag.
func (r *MigrationFlagRepositoryImpl) SetNeedsMigration(ctx context.Context, needed bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO retry_migration_state (state_key, state_value)
		VALUES ($1, $2)
		ON CONFLICT (state_key) DO UPDATE SET state_value = EXCLUDED.state_value
	`, needsMigrationKey, needed)
	return err
}
