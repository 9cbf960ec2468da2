package repository

import (
	"context"
)

// MigrationFlagStore persists the process-wide "retries need migration"
// flag: set while any legacy-store records exist, cleared once none remain.
type MigrationFlagStore interface {
	NeedsMigration(ctx context.Context) (bool, error)
	SetNeedsMigration(ctx context.Context, needed bool) error
}
