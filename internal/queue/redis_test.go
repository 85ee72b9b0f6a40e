package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-process redis and returns a connected client.
func setupTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisDriver_PushPop(t *testing.T) {
	driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
	ctx := context.Background()

	t.Run("pop returns the pushed envelope", func(t *testing.T) {
		uuid, err := driver.Push(ctx, "emails", Message{
			Handler: "SendWelcomeEmail",
			Data:    map[string]any{"to": "a@example.com"},
		})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "emails")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, uuid, job.UUID)
		assert.Equal(t, "SendWelcomeEmail", job.Handler)
		assert.Equal(t, "a@example.com", job.Data["to"])
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, "emails", job.Queue)
	})

	t.Run("empty queue pops nil without error", func(t *testing.T) {
		job, err := driver.Pop(ctx, "nothing-here")
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("reserved job is invisible to a second pop", func(t *testing.T) {
		_, err := driver.Push(ctx, "solo", Message{Handler: "Once"})
		require.NoError(t, err)

		first, err := driver.Pop(ctx, "solo")
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := driver.Pop(ctx, "solo")
		require.NoError(t, err)
		assert.Nil(t, second)
	})
}

func TestRedisDriver_Ordering(t *testing.T) {
	driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
	ctx := context.Background()

	t.Run("priority jumps the line", func(t *testing.T) {
		_, err := driver.Push(ctx, "work", Message{Handler: "Low"})
		require.NoError(t, err)
		_, err = driver.Push(ctx, "work", Message{Handler: "High", Priority: 5})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "work")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, "High", job.Handler)
	})

	t.Run("equal priority is FIFO", func(t *testing.T) {
		first, err := driver.Push(ctx, "fifo", Message{Handler: "First"})
		require.NoError(t, err)
		_, err = driver.Push(ctx, "fifo", Message{Handler: "Second"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "fifo")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, first, job.UUID)
	})

	t.Run("delayed job stays invisible until due", func(t *testing.T) {
		_, err := driver.Later(ctx, "later", time.Hour, Message{Handler: "Tomorrow"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "later")
		require.NoError(t, err)
		assert.Nil(t, job)

		stats, err := driver.Stats(ctx, "later")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Delayed)
	})
}

func TestRedisDriver_LeaseRecovery(t *testing.T) {
	// A nanosecond lease makes every reservation immediately reclaimable.
	driver := NewRedisDriver(setupTestRedis(t), time.Nanosecond, 0, nil)
	ctx := context.Background()

	_, err := driver.Push(ctx, "flaky", Message{Handler: "Crashy"})
	require.NoError(t, err)

	first, err := driver.Pop(ctx, "flaky")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Attempts)

	second, err := driver.Pop(ctx, "flaky")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, 2, second.Attempts)
}

func TestRedisDriver_ReleaseDeleteFail(t *testing.T) {
	driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
	ctx := context.Background()

	t.Run("release with delay defers the retry", func(t *testing.T) {
		_, err := driver.Push(ctx, "retry", Message{Handler: "Again"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "retry")
		require.NoError(t, err)
		require.NotNil(t, job)

		require.NoError(t, driver.Release(ctx, job, time.Hour))

		back, err := driver.Pop(ctx, "retry")
		require.NoError(t, err)
		assert.Nil(t, back)
	})

	t.Run("release without delay makes it poppable again", func(t *testing.T) {
		_, err := driver.Push(ctx, "retry2", Message{Handler: "Again"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "retry2")
		require.NoError(t, err)
		require.NoError(t, driver.Release(ctx, job, 0))

		again, err := driver.Pop(ctx, "retry2")
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, 2, again.Attempts)
	})

	t.Run("delete removes the job for good", func(t *testing.T) {
		_, err := driver.Push(ctx, "done", Message{Handler: "Done"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "done")
		require.NoError(t, err)
		require.NoError(t, driver.Delete(ctx, job))

		size, err := driver.Size(ctx, "done")
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("fail archives into the failed list", func(t *testing.T) {
		_, err := driver.Push(ctx, "doomed", Message{Handler: "Boom"})
		require.NoError(t, err)

		job, err := driver.Pop(ctx, "doomed")
		require.NoError(t, err)
		require.NoError(t, driver.Fail(ctx, job, assert.AnError))

		size, err := driver.Size(ctx, "doomed")
		require.NoError(t, err)
		assert.Zero(t, size)

		stats, err := driver.Stats(ctx, "doomed")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Failed)
	})
}

func TestRedisDriver_BulkStatsPurge(t *testing.T) {
	ctx := context.Background()

	// Stats with an empty queue name aggregate the whole store, so each
	// subtest gets its own redis.
	t.Run("bulk uuids come back in input order", func(t *testing.T) {
		driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
		uuids, err := driver.Bulk(ctx, "batchq", []Message{
			{Handler: "A"}, {Handler: "B"}, {Handler: "C"},
		})
		require.NoError(t, err)
		require.Len(t, uuids, 3)

		for i := range uuids {
			job, err := driver.Pop(ctx, "batchq")
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, uuids[i], job.UUID)
		}
	})

	t.Run("stats break down by state", func(t *testing.T) {
		driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
		_, err := driver.Push(ctx, "alpha", Message{Handler: "A"})
		require.NoError(t, err)
		_, err = driver.Later(ctx, "alpha", time.Hour, Message{Handler: "B"})
		require.NoError(t, err)
		_, err = driver.Push(ctx, "beta", Message{Handler: "C"})
		require.NoError(t, err)
		_, err = driver.Pop(ctx, "beta")
		require.NoError(t, err)

		stats, err := driver.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Pending)
		assert.Equal(t, int64(1), stats.Delayed)
		assert.Equal(t, int64(1), stats.Reserved)
		assert.Equal(t, int64(3), stats.Total)
	})

	t.Run("purge drops the queue and its job hashes", func(t *testing.T) {
		driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
		_, err := driver.Push(ctx, "alpha", Message{Handler: "A"})
		require.NoError(t, err)
		_, err = driver.Later(ctx, "alpha", time.Hour, Message{Handler: "B"})
		require.NoError(t, err)

		removed, err := driver.Purge(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		size, err := driver.Size(ctx, "alpha")
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("health check reports reachable", func(t *testing.T) {
		driver := NewRedisDriver(setupTestRedis(t), 0, 0, nil)
		health := driver.HealthCheck(ctx)
		assert.True(t, health.Healthy)
		assert.GreaterOrEqual(t, health.RTTMs, 0.0)
	})
}
