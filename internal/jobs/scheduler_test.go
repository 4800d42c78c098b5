package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	ok       bool
	err      error
	locked   []int64
	unlocked int
}

func (m *mockLocker) TryLock(_ context.Context, key int64) (func(), bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	if !m.ok {
		return nil, false, nil
	}
	m.locked = append(m.locked, key)
	return func() { m.unlocked++ }, true, nil
}

type mockCleaner struct {
	before  time.Time
	calls   int
	deleted int64
	err     error
}

func (m *mockCleaner) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	m.calls++
	m.before = before
	return m.deleted, m.err
}

func newTestScheduler(t *testing.T, locker Locker, cleaner QueueCleaner) *Scheduler {
	t.Helper()
	s, err := NewScheduler(DefaultConfig(), locker, cleaner)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC) }
	return s
}

func TestNewScheduler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"descriptor schedule", func(c *Config) { c.CleanupSchedule = "@daily" }, ""},
		{"bad schedule", func(c *Config) { c.CleanupSchedule = "not a cron" }, "invalid cleanup schedule"},
		{"seconds field rejected", func(c *Config) { c.CleanupSchedule = "0 0 3 * * *" }, "invalid cleanup schedule"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "load timezone"},
		{"zero retention", func(c *Config) { c.Retention = 0 }, "retention must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := NewScheduler(cfg, &mockLocker{}, &mockCleaner{})

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunCleanup_DeletesOlderThanRetention(t *testing.T) {
	// Arrange
	locker := &mockLocker{ok: true}
	cleaner := &mockCleaner{deleted: 42}
	s := newTestScheduler(t, locker, cleaner)

	// Act
	deleted, err := s.RunCleanup(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
	assert.Equal(t, time.Date(2024, 6, 3, 3, 0, 0, 0, time.UTC), cleaner.before)
	assert.Equal(t, []int64{cleanupLockKey}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}

func TestRunCleanup_LockHeldElsewhere(t *testing.T) {
	cleaner := &mockCleaner{}
	s := newTestScheduler(t, &mockLocker{ok: false}, cleaner)

	deleted, err := s.RunCleanup(context.Background())

	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Zero(t, cleaner.calls)
}

func TestRunCleanup_LockError(t *testing.T) {
	cleaner := &mockCleaner{}
	s := newTestScheduler(t, &mockLocker{err: errors.New("conn refused")}, cleaner)

	_, err := s.RunCleanup(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock")
	assert.Zero(t, cleaner.calls)
}

func TestRunCleanup_DeleteErrorStillUnlocks(t *testing.T) {
	locker := &mockLocker{ok: true}
	s := newTestScheduler(t, locker, &mockCleaner{err: errors.New("db down")})

	_, err := s.RunCleanup(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, locker.unlocked)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(t, &mockLocker{ok: true}, &mockCleaner{})

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, s.Stop(ctx))
}
