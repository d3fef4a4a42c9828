package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

var indexBase = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func key(pro, date string) availability.Key {
	return availability.Key{ProfessionalID: pro, Date: date}
}

func runLockIndexSuite(t *testing.T, newIndex func(t *testing.T) LockIndex) {
	ctx := context.Background()
	at := func(min int) time.Time { return indexBase.Add(time.Duration(min) * time.Minute) }

	t.Run("track keeps earliest pending expiry", func(t *testing.T) {
		idx := newIndex(t)
		k := key("pro-1", "2024-06-03")
		require.NoError(t, idx.Track(ctx, k, at(10), at(0)))
		require.NoError(t, idx.Track(ctx, k, at(20), at(1)))
		require.NoError(t, idx.Track(ctx, k, at(5), at(2)))

		due, err := idx.Due(ctx, at(30), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.True(t, due[0].DueAt.Equal(at(5)))
	})

	t.Run("track replaces an already due expiry", func(t *testing.T) {
		idx := newIndex(t)
		k := key("pro-1", "2024-06-03")
		require.NoError(t, idx.Track(ctx, k, at(5), at(0)))
		require.NoError(t, idx.Track(ctx, k, at(15), at(10)))

		due, err := idx.Due(ctx, at(10), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = idx.Due(ctx, at(15), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
	})

	t.Run("due is ordered and limited", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Track(ctx, key("pro-3", "2024-06-03"), at(3), at(0)))
		require.NoError(t, idx.Track(ctx, key("pro-1", "2024-06-03"), at(1), at(0)))
		require.NoError(t, idx.Track(ctx, key("pro-2", "2024-06-04"), at(2), at(0)))
		require.NoError(t, idx.Track(ctx, key("pro-4", "2024-06-03"), at(60), at(0)))

		due, err := idx.Due(ctx, at(10), 2)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, key("pro-1", "2024-06-03"), due[0].Key)
		assert.Equal(t, key("pro-2", "2024-06-04"), due[1].Key)

		due, err = idx.Due(ctx, at(10), 10)
		require.NoError(t, err)
		assert.Len(t, due, 3, "due does not consume entries")
	})

	t.Run("settle removes or reschedules", func(t *testing.T) {
		idx := newIndex(t)
		a, b := key("pro-1", "2024-06-03"), key("pro-2", "2024-06-03")
		require.NoError(t, idx.Track(ctx, a, at(1), at(0)))
		require.NoError(t, idx.Track(ctx, b, at(2), at(0)))

		due, err := idx.Due(ctx, at(5), 10)
		require.NoError(t, err)
		require.Len(t, due, 2)

		next := at(30)
		require.NoError(t, idx.Settle(ctx, due[0], nil))
		require.NoError(t, idx.Settle(ctx, due[1], &next))

		due, err = idx.Due(ctx, at(29), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = idx.Due(ctx, at(30), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, b, due[0].Key)
	})

	t.Run("settle loses to a concurrent track", func(t *testing.T) {
		idx := newIndex(t)
		k := key("pro-1", "2024-06-03")
		require.NoError(t, idx.Track(ctx, k, at(1), at(0)))

		due, err := idx.Due(ctx, at(5), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		require.NoError(t, idx.Track(ctx, k, at(12), at(7)))
		require.NoError(t, idx.Settle(ctx, due[0], nil))

		due, err = idx.Due(ctx, at(12), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.True(t, due[0].DueAt.Equal(at(12)))
	})
}

func TestRedisLockIndex(t *testing.T) {
	runLockIndexSuite(t, func(t *testing.T) LockIndex {
		client, cleanup := setupTestRedis(t)
		t.Cleanup(cleanup)
		return NewRedisLockIndex(client, nil)
	})
}

func TestMemoryLockIndex(t *testing.T) {
	runLockIndexSuite(t, func(t *testing.T) LockIndex {
		return NewMemoryLockIndex()
	})
}

func TestRedisLockIndex_DropsMalformedMembers(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	idx := NewRedisLockIndex(client, nil).WithKey("test:locks")
	require.NoError(t, client.ZAdd(ctx, "test:locks", redis.Z{Score: 1, Member: "junk"}).Err())

	due, err := idx.Due(ctx, indexBase, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	count, err := client.ZCard(ctx, "test:locks").Result()
	require.NoError(t, err)
	assert.Zero(t, count)
}
