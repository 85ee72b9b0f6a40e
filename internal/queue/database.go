package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/db/models"
	"github.com/glueful/glueful/internal/telemetry"
	"github.com/uptrace/bun"
)

// DatabaseDriver implements Driver on the relational jobs table.
//
// Claiming is transactional: a lease-expiry sweep, a candidate select and an
// optimistic UPDATE ... WHERE reserved_at IS NULL run inside one RunInTx, so
// concurrent workers on the same queue never double-reserve. Serialization is
// per-row via the store's transactions; the driver holds no cross-call locks.
type DatabaseDriver struct {
	db         *bun.DB
	retryAfter time.Duration
	metrics    *telemetry.QueueMetrics
}

// NewDatabaseDriver creates a relational queue driver. retryAfter <= 0 falls
// back to the default reservation lease.
func NewDatabaseDriver(db *bun.DB, retryAfter time.Duration, metrics *telemetry.QueueMetrics) *DatabaseDriver {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &DatabaseDriver{db: db, retryAfter: retryAfter, metrics: metrics}
}

// Push enqueues a job visible at now + msg.Delay.
func (d *DatabaseDriver) Push(ctx context.Context, queue string, msg Message) (string, error) {
	uuids, err := d.Bulk(ctx, queue, []Message{msg})
	if err != nil {
		return "", err
	}
	return uuids[0], nil
}

// Later enqueues a job visible after the delay.
func (d *DatabaseDriver) Later(ctx context.Context, queue string, delay time.Duration, msg Message) (string, error) {
	msg.Delay = delay
	return d.Push(ctx, queue, msg)
}

// Bulk enqueues a batch with a single insert statement. Either every job is
// enqueued and every uuid returned, or none.
func (d *DatabaseDriver) Bulk(ctx context.Context, queue string, msgs []Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if queue == "" {
		queue = DefaultQueue
	}

	now := time.Now()
	rows := make([]*models.Job, 0, len(msgs))
	uuids := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		job := newJob(bunx.NewJobID(), queue, msg, now)
		payload, err := encodeJob(job)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &models.Job{
			UUID:        job.UUID,
			Queue:       queue,
			Payload:     payload,
			Attempts:    0,
			AvailableAt: job.AvailableAt,
			CreatedAt:   now.Unix(),
			Priority:    job.Priority,
			BatchUUID:   job.BatchUUID,
		})
		uuids = append(uuids, job.UUID)
	}

	if _, err := d.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, fmt.Errorf("bulk insert jobs: %w", err)
	}

	d.metrics.RecordPush(ctx, queue, int64(len(rows)))
	return uuids, nil
}

// Pop reserves the next available job or returns (nil, nil) when the queue
// is empty.
func (d *DatabaseDriver) Pop(ctx context.Context, queue string) (*Job, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	var claimed *models.Job

	err := d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().Unix()
		leaseCutoff := now - int64(d.retryAfter/time.Second)

		// 1. Lease-expiry sweep: stalled reservations return to pending.
		_, err := tx.NewUpdate().
			Model((*models.Job)(nil)).
			Set("reserved_at = NULL").
			Where("queue = ?", queue).
			Where("reserved_at IS NOT NULL AND reserved_at <= ?", leaseCutoff).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sweep expired leases: %w", err)
		}

		// 2. Select a candidate: highest priority, oldest availableAt.
		row := new(models.Job)
		err = tx.NewSelect().
			Model(row).
			Where("queue = ?", queue).
			Where("reserved_at IS NULL").
			Where("available_at <= ?", now).
			Order("priority DESC", "available_at ASC", "id ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select candidate job: %w", err)
		}

		// 3. Optimistic claim; a concurrent worker winning the race leaves
		// zero affected rows and this pop comes back empty.
		result, err := tx.NewUpdate().
			Model((*models.Job)(nil)).
			Set("reserved_at = ?", now).
			Set("attempts = attempts + 1").
			Where("id = ?", row.ID).
			Where("reserved_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		row.Attempts++
		reservedAt := now
		row.ReservedAt = &reservedAt
		claimed = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}

	job, err := decodeJob(claimed.Payload)
	if err != nil {
		return nil, err
	}
	job.Attempts = claimed.Attempts
	job.Queue = claimed.Queue

	d.metrics.RecordPop(ctx, queue)
	return job, nil
}

// Release returns a reserved job to pending (delay 0) or delayed, keeping
// its attempt count.
func (d *DatabaseDriver) Release(ctx context.Context, job *Job, delay time.Duration) error {
	availableAt := time.Now().Add(delay).Unix()
	_, err := d.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("reserved_at = NULL").
		Set("available_at = ?", availableAt).
		Where("uuid = ?", job.UUID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release job %s: %w", job.UUID, err)
	}
	return nil
}

// Delete removes a job permanently.
func (d *DatabaseDriver) Delete(ctx context.Context, job *Job) error {
	_, err := d.db.NewDelete().
		Model((*models.Job)(nil)).
		Where("uuid = ?", job.UUID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", job.UUID, err)
	}
	return nil
}

// Fail archives the job into failed_jobs and removes it from the active set,
// in one transaction.
func (d *DatabaseDriver) Fail(ctx context.Context, job *Job, cause error) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}

	err = d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		failed := &models.FailedJob{
			UUID:       job.UUID,
			Connection: "database",
			Queue:      job.Queue,
			Payload:    payload,
			Exception:  cause.Error(),
			BatchUUID:  job.BatchUUID,
			FailedAt:   time.Now(),
		}
		if _, err := tx.NewInsert().Model(failed).Exec(ctx); err != nil {
			return fmt.Errorf("archive failed job: %w", err)
		}

		if _, err := tx.NewDelete().
			Model((*models.Job)(nil)).
			Where("uuid = ?", job.UUID).
			Exec(ctx); err != nil {
			return fmt.Errorf("remove failed job from active set: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.metrics.RecordFail(ctx, job.Queue)
	return nil
}

// Size counts pending + delayed + reserved jobs.
func (d *DatabaseDriver) Size(ctx context.Context, queue string) (int64, error) {
	q := d.db.NewSelect().Model((*models.Job)(nil))
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int64(count), nil
}

// Purge deletes all jobs, returning the count removed.
func (d *DatabaseDriver) Purge(ctx context.Context, queue string) (int64, error) {
	q := d.db.NewDelete().Model((*models.Job)(nil)).Where("1 = 1")
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	result, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return affected, nil
}

// Stats reports backlog totals broken down by state.
func (d *DatabaseDriver) Stats(ctx context.Context, queue string) (*Stats, error) {
	now := time.Now().Unix()
	stats := new(Stats)

	base := func() *bun.SelectQuery {
		q := d.db.NewSelect().Model((*models.Job)(nil))
		if queue != "" {
			q = q.Where("queue = ?", queue)
		}
		return q
	}

	total, err := base().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count total: %w", err)
	}
	reserved, err := base().Where("reserved_at IS NOT NULL").Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reserved: %w", err)
	}
	delayed, err := base().Where("reserved_at IS NULL").Where("available_at > ?", now).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count delayed: %w", err)
	}

	failedQ := d.db.NewSelect().Model((*models.FailedJob)(nil))
	if queue != "" {
		failedQ = failedQ.Where("queue = ?", queue)
	}
	failed, err := failedQ.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	var queues []string
	err = d.db.NewSelect().
		Model((*models.Job)(nil)).
		ColumnExpr("DISTINCT queue").
		Order("queue ASC").
		Scan(ctx, &queues)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	stats.Total = int64(total)
	stats.Reserved = int64(reserved)
	stats.Delayed = int64(delayed)
	stats.Pending = int64(total - reserved - delayed)
	stats.Failed = int64(failed)
	stats.Queues = queues
	return stats, nil
}

// BatchJobs returns the active members of a batch.
func (d *DatabaseDriver) BatchJobs(ctx context.Context, batchUUID string) ([]string, error) {
	var uuids []string
	err := d.db.NewSelect().
		Model((*models.Job)(nil)).
		Column("uuid").
		Where("batch_uuid = ?", batchUUID).
		Order("id ASC").
		Scan(ctx, &uuids)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	return uuids, nil
}

// HealthCheck pings the database and reports round-trip time.
func (d *DatabaseDriver) HealthCheck(ctx context.Context) *Health {
	start := time.Now()
	err := d.db.PingContext(ctx)
	rtt := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		return &Health{Healthy: false, Detail: err.Error(), RTTMs: rtt}
	}
	return &Health{Healthy: true, Detail: "database reachable", RTTMs: rtt}
}
