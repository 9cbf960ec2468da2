package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/migration"
	"github.com/bivex/renewal-retry/tests/testutil"
)

func TestBackgroundMigrator(t *testing.T) {
	ctx := context.Background()

	newBackground := func(batchSize int) (*migration.BackgroundMigrator, *testutil.MemoryRetryStore, *testutil.MemoryRetryStore, *testutil.MemoryFlagStore) {
		source := testutil.NewMemoryRetryStore()
		destination := testutil.NewMemoryRetryStore()
		flags := testutil.NewMemoryFlagStore(true)
		migrator := migration.NewMigrator(source, destination, flags, zap.NewNop())
		return migration.NewBackgroundMigrator(migrator, source, flags, batchSize, zap.NewNop()), source, destination, flags
	}

	t.Run("drains the legacy store in batches and clears the flag", func(t *testing.T) {
		background, source, destination, flags := newBackground(10)
		for i := 0; i < 25; i++ {
			seedLegacyRetry(t, source, int64(i+1))
		}

		runs := 0
		for {
			remaining, err := background.RunBatch(ctx)
			require.NoError(t, err)
			runs++
			require.Less(t, runs, 10, "migration must terminate")
			if !remaining {
				break
			}
		}

		// 25 records at batch size 10: three draining runs plus the empty run
		// that clears the flag.
		assert.Equal(t, 4, runs)
		assert.Equal(t, 0, source.Len())
		assert.Equal(t, 25, destination.Len())

		needed, err := flags.NeedsMigration(ctx)
		require.NoError(t, err)
		assert.False(t, needed)
	})

	t.Run("a broken record is skipped without stopping the batch", func(t *testing.T) {
		background, source, destination, _ := newBackground(10)
		bad := seedLegacyRetry(t, source, 1)
		seedLegacyRetry(t, source, 2)
		seedLegacyRetry(t, source, 3)
		source.GetErr[bad.ID] = assert.AnError

		remaining, err := background.RunBatch(ctx)
		require.NoError(t, err)
		assert.True(t, remaining)

		assert.Equal(t, 2, destination.Len())
		assert.Equal(t, 1, source.Len(), "only the broken record stays behind")
	})

	t.Run("empty legacy store completes immediately", func(t *testing.T) {
		background, _, _, flags := newBackground(10)

		remaining, err := background.RunBatch(ctx)
		require.NoError(t, err)
		assert.False(t, remaining)

		needed, err := flags.NeedsMigration(ctx)
		require.NoError(t, err)
		assert.False(t, needed)
	})

	t.Run("PendingCount reports the legacy backlog", func(t *testing.T) {
		background, source, _, _ := newBackground(10)
		for i := 0; i < 3; i++ {
			seedLegacyRetry(t, source, int64(i+1))
		}

		count, err := background.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}
