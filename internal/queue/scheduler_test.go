package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	db := setupTestDB(t)
	driver := NewDatabaseDriver(db, 0, nil)
	ctx := context.Background()

	t.Run("rejects malformed expressions", func(t *testing.T) {
		sched := NewScheduler(driver)
		err := sched.Add("broken", "not a cron", "cron", Message{Handler: "X"})
		assert.Error(t, err)
	})

	t.Run("every-minute schedule fires on each tick", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("heartbeat", "* * * * *", "cron-a", Message{Handler: "Heartbeat"}))

		at := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
		sched.Tick(ctx, at)
		sched.Tick(ctx, at.Add(time.Minute))

		size, err := driver.Size(ctx, "cron-a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), size)
	})

	t.Run("same minute never fires twice", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("heartbeat", "* * * * *", "cron-b", Message{Handler: "Heartbeat"}))

		at := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
		sched.Tick(ctx, at)
		sched.Tick(ctx, at.Add(10*time.Second))
		sched.Tick(ctx, at.Add(50*time.Second))

		size, err := driver.Size(ctx, "cron-b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), size)
	})

	t.Run("field expressions fire only when due", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("nightly", "30 2 * * *", "cron-c", Message{Handler: "Nightly"}))

		sched.Tick(ctx, time.Date(2026, 8, 25, 2, 29, 0, 0, time.UTC))
		sched.Tick(ctx, time.Date(2026, 8, 25, 2, 30, 0, 0, time.UTC))
		sched.Tick(ctx, time.Date(2026, 8, 25, 2, 31, 0, 0, time.UTC))

		size, err := driver.Size(ctx, "cron-c")
		require.NoError(t, err)
		assert.Equal(t, int64(1), size)
	})

	t.Run("aliases parse and fire at midnight", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("daily", "@daily", "cron-d", Message{Handler: "Daily"}))

		sched.Tick(ctx, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC))
		sched.Tick(ctx, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

		size, err := driver.Size(ctx, "cron-d")
		require.NoError(t, err)
		assert.Equal(t, int64(1), size)
	})

	t.Run("re-adding a name replaces the schedule", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("job", "* * * * *", "cron-e", Message{Handler: "V1"}))
		require.NoError(t, sched.Add("job", "30 2 * * *", "cron-e", Message{Handler: "V2"}))

		sched.Tick(ctx, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))

		size, err := driver.Size(ctx, "cron-e")
		require.NoError(t, err)
		assert.Zero(t, size)
		assert.Equal(t, []string{"job"}, sched.Names())
	})

	t.Run("remove stops firing", func(t *testing.T) {
		sched := NewScheduler(driver)
		require.NoError(t, sched.Add("gone", "* * * * *", "cron-f", Message{Handler: "Gone"}))
		sched.Remove("gone")

		sched.Tick(ctx, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))

		size, err := driver.Size(ctx, "cron-f")
		require.NoError(t, err)
		assert.Zero(t, size)
		assert.Empty(t, sched.Names())
	})
}
