package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker takes session-level PostgreSQL advisory locks.
// Lock and unlock run on the same pooled connection, which is held until unlock.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker creates a new AdvisoryLocker.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// TryLock attempts pg_try_advisory_lock(key). When ok is true the caller
// must call unlock to release both the lock and the connection.
func (l *AdvisoryLocker) TryLock(ctx context.Context, key int64) (unlock func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	unlock = func() {
		var released bool
		if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil || !released {
			slog.Error("failed to release advisory lock", "key", key, "error", err)
			// Drop the connection so the session lock cannot leak to another user.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
	return unlock, true, nil
}
