package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// IDReserver is implemented by destination stores whose id assignment can be
// advanced past a given value.
type IDReserver interface {
	ReserveIDsThrough(ctx context.Context, id int64) error
}

// OpenWindow inspects the legacy store at startup and opens or closes the
// migration window. Both stores assign ids independently, and migration
// preserves legacy ids, so while legacy records exist the destination id
// range must be reserved past the highest legacy id before the flag is
// raised. Otherwise a fresh record could take an id that still belongs to an
// unmigrated legacy record, and migrating that record would silently merge
// two different retries. With no legacy records left the flag is cleared.
func OpenWindow(
	ctx context.Context,
	source repository.RetryStore,
	destination IDReserver,
	flags repository.MigrationFlagStore,
	logger *zap.Logger,
) error {
	newest, err := source.Query(ctx, repository.RetryQuery{
		OrderBy: repository.RetryOrderByID,
		Limit:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to inspect legacy retry store: %w", err)
	}

	if len(newest) == 0 {
		if err := flags.SetNeedsMigration(ctx, false); err != nil {
			return fmt.Errorf("failed to clear migration flag: %w", err)
		}
		return nil
	}

	maxID := newest[0].ID
	if err := destination.ReserveIDsThrough(ctx, maxID); err != nil {
		return fmt.Errorf("failed to reserve destination id range: %w", err)
	}
	if err := flags.SetNeedsMigration(ctx, true); err != nil {
		return fmt.Errorf("failed to raise migration flag: %w", err)
	}

	logger.Info("retry store migration window opened",
		zap.Int64("max_legacy_id", maxID))
	return nil
}
