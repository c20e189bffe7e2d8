package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "match:result:1", `{"winningTeam":1}`, 0))
	v, err := c.Get(ctx, "match:result:1")
	require.NoError(t, err)
	assert.Equal(t, `{"winningTeam":1}`, v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", "c", "b", "a"))
	items, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	// LPush "c" then "b" then "a" → head = a, b, c
	assert.Equal(t, []string{"a", "b", "c"}, items)

	require.NoError(t, c.LTrim(ctx, "l", 0, 1))
	items, _ = c.LRange(ctx, "l", 0, -1)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestList_CappedHistory(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, c.LPush(ctx, "h", v))
		require.NoError(t, c.LTrim(ctx, "h", 0, 2))
	}
	items, err := c.LRange(ctx, "h", 0, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "4", "3"}, items)

	items, err = c.LRange(ctx, "empty", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
