package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))

	val, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	assert.NoError(t, c.Delete(ctx, "key"))
	n, err := c.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url://")
	assert.Error(t, err)
}

func TestIncidentStatsVersionKey(t *testing.T) {
	assert.Equal(t, "incidents:stats:v0", IncidentStatsVersionKey(0))
	assert.Equal(t, "incidents:stats:v42", IncidentStatsVersionKey(42))
	assert.NotEqual(t, IncidentStatsGenerationKey, IncidentStatsVersionKey(0))
}
