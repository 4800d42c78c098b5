//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/bissquit/incident-tracker/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	require.NoError(t, Migrate(migrations.FS, pg.ConnectionString))

	pool, err := Connect(ctx, Config{
		URL:             pg.ConnectionString,
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 3,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	for _, table := range []string{"users", "roles", "user_roles", "incidents", "comments", "notification_queue"} {
		var exists bool
		err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", "public."+table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	// second run is a no-op
	assert.NoError(t, Migrate(migrations.FS, pool.Config().ConnString()))
}

func TestTxManager_Integration(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	tm := NewTxManager(pool)

	_, err := pool.Exec(ctx, "CREATE TABLE tx_scratch (v int)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM tx_scratch").Scan(&n))
		return n
	}

	t.Run("rollback on error", func(t *testing.T) {
		errBoom := errors.New("boom")
		err := tm.Do(ctx, func(ctx context.Context) error {
			_, err := tm.Queryer(ctx).Exec(ctx, "INSERT INTO tx_scratch VALUES (1)")
			require.NoError(t, err)
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 0, count())
	})

	t.Run("nested calls share the transaction", func(t *testing.T) {
		err := tm.Do(ctx, func(ctx context.Context) error {
			if _, err := tm.Queryer(ctx).Exec(ctx, "INSERT INTO tx_scratch VALUES (1)"); err != nil {
				return err
			}
			return tm.Do(ctx, func(ctx context.Context) error {
				_, err := tm.Queryer(ctx).Exec(ctx, "INSERT INTO tx_scratch VALUES (2)")
				return err
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count())
	})
}

func TestAdvisoryLocker_Integration(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	locker := NewAdvisoryLocker(pool)
	const key = 42

	unlock, ok, err := locker.TryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// the lock is session level, so a second session is refused
	_, ok, err = locker.TryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()

	unlock, ok, err = locker.TryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock()
}
