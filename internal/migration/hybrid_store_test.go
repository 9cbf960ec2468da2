package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
	"github.com/bivex/renewal-retry/internal/migration"
	"github.com/bivex/renewal-retry/tests/testutil"
)

type hybridFixture struct {
	source      *testutil.MemoryRetryStore
	destination *testutil.MemoryRetryStore
	flags       *testutil.MemoryFlagStore
	store       *migration.HybridStore
}

func newHybridFixture(needsMigration bool) *hybridFixture {
	f := &hybridFixture{
		source:      testutil.NewMemoryRetryStore(),
		destination: testutil.NewMemoryRetryStore(),
		flags:       testutil.NewMemoryFlagStore(needsMigration),
	}
	migrator := migration.NewMigrator(f.source, f.destination, f.flags, zap.NewNop())
	f.store = migration.NewHybridStore(migrator, f.source, f.destination, f.flags, zap.NewNop())
	return f
}

func TestHybridStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get migrates a legacy record on first access", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 1)

		got, err := f.store.Get(ctx, legacy.ID)
		require.NoError(t, err)
		assert.Equal(t, legacy.OrderID, got.OrderID)
		assert.Equal(t, 1, f.destination.Len(), "record should now live in the destination")
	})

	t.Run("LastForOrder sees legacy records through the facade", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 7)

		last, err := f.store.LastForOrder(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, legacy.ID, last.ID)
	})

	t.Run("Query upgrades matches before delegating", func(t *testing.T) {
		f := newHybridFixture(true)
		seedLegacyRetry(t, f.source, 1)
		seedLegacyRetry(t, f.source, 2)

		pending := valueobject.RetryStatusPending
		results, err := f.store.Query(ctx, repository.RetryQuery{Status: &pending})
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, 2, f.destination.Len())
	})

	t.Run("CountForOrder never double counts", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 5)

		// First call migrates, second call hits the already-migrated record.
		for i := 0; i < 2; i++ {
			count, err := f.store.CountForOrder(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "pass %d", i)
		}
		_ = legacy
	})

	t.Run("Save of a legacy record upgrades it first", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 1)

		require.NoError(t, legacy.MarkCancelled())
		_, err := f.store.Save(ctx, legacy)
		require.NoError(t, err)

		got, err := f.destination.Get(ctx, legacy.ID)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusCancelled, got.Status)
	})

	t.Run("Delete removes from both stores during the window", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 1)

		existed, err := f.store.Delete(ctx, legacy.ID)
		require.NoError(t, err)
		// The record never reached the destination, so the facade reports the
		// destination's answer; the legacy copy is gone regardless.
		assert.False(t, existed)
		assert.Equal(t, 0, f.source.Len())
	})

	t.Run("cleared flag latches into pure delegation", func(t *testing.T) {
		f := newHybridFixture(false)
		orphan := seedLegacyRetry(t, f.source, 1)

		_, err := f.store.Get(ctx, orphan.ID)
		assert.Error(t, err, "legacy records are invisible once migration is over")

		// Even if the flag were flipped back on, the latch keeps delegating.
		require.NoError(t, f.flags.SetNeedsMigration(ctx, true))
		_, err = f.store.Get(ctx, orphan.ID)
		assert.Error(t, err)
	})

	t.Run("flag read failure keeps the migration window open", func(t *testing.T) {
		f := newHybridFixture(true)
		legacy := seedLegacyRetry(t, f.source, 1)
		f.flags.ReadErr = assert.AnError

		// ShouldMigrate also reads the flag and will fail; the facade logs and
		// falls back to the destination, which has nothing yet.
		_, err := f.store.Get(ctx, legacy.ID)
		assert.Error(t, err)

		f.flags.ReadErr = nil
		got, err := f.store.Get(ctx, legacy.ID)
		require.NoError(t, err)
		assert.Equal(t, legacy.ID, got.ID)
	})
}
