package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptCounter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryAttemptCounter()
	c.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		n, left, err := c.Hit(ctx, "login:a@example.com", 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Equal(t, 10*time.Minute, left)
	}

	now = now.Add(4 * time.Minute)
	n, left, err := c.Hit(ctx, "login:a@example.com", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 6*time.Minute, left)

	n, _, err = c.Hit(ctx, "login:b@example.com", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "keys are counted independently")

	now = now.Add(6 * time.Minute)
	n, _, err = c.Hit(ctx, "login:a@example.com", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a new window starts once the old one elapses")

	require.NoError(t, c.Reset(ctx, "login:a@example.com"))
	n, _, err = c.Hit(ctx, "login:a@example.com", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
