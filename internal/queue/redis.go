package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// Key layout. All keys live under the glueful: prefix so a shared redis can
// host other tenants.
//
//	queue:{name}           list   pending uuids (FIFO; priority > 0 pushes to head)
//	queue:{name}:delayed   zset   uuid scored by availableAt epoch
//	queue:{name}:reserved  zset   uuid scored by lease expiry epoch
//	job:{uuid}             hash   full job data, TTL >= jobExpiration
//	queues                 set    known queue names
const keyPrefix = "glueful:"

// RedisDriver implements Driver on the kv store's list/zset/hash primitives.
// Every state transition touching more than one key runs inside a Lua script
// or TxPipeline, so concurrent producers and consumers across processes stay
// consistent without in-process locks.
type RedisDriver struct {
	client        redis.UniversalClient
	retryAfter    time.Duration
	jobExpiration time.Duration
	metrics       *telemetry.QueueMetrics
}

// NewRedisDriver creates a kv-atomic queue driver.
func NewRedisDriver(client redis.UniversalClient, retryAfter, jobExpiration time.Duration, metrics *telemetry.QueueMetrics) *RedisDriver {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	if jobExpiration <= 0 {
		jobExpiration = DefaultJobExpiration
	}
	return &RedisDriver{
		client:        client,
		retryAfter:    retryAfter,
		jobExpiration: jobExpiration,
		metrics:       metrics,
	}
}

func pendingKey(queue string) string  { return keyPrefix + "queue:" + queue }
func delayedKey(queue string) string  { return keyPrefix + "queue:" + queue + ":delayed" }
func reservedKey(queue string) string { return keyPrefix + "queue:" + queue + ":reserved" }
func failedKey(queue string) string   { return keyPrefix + "queue:" + queue + ":failed" }
func jobKey(uuid string) string       { return keyPrefix + "job:" + uuid }
func queuesKey() string               { return keyPrefix + "queues" }

// popScript promotes due delayed and expired reserved entries, pops the head
// of the pending list and reserves it, all in one atomic script.
//
// KEYS[1] pending, KEYS[2] delayed, KEYS[3] reserved
// ARGV[1] now epoch, ARGV[2] lease expiry epoch, ARGV[3] key prefix
var popScript = redis.NewScript(`
local function promote(zset, pending, now, prefix)
  local due = redis.call('ZRANGEBYSCORE', zset, '-inf', now)
  for _, uuid in ipairs(due) do
    redis.call('ZREM', zset, uuid)
    local priority = tonumber(redis.call('HGET', prefix .. 'job:' .. uuid, 'priority') or '0')
    if priority > 0 then
      redis.call('LPUSH', pending, uuid)
    else
      redis.call('RPUSH', pending, uuid)
    end
  end
end

promote(KEYS[2], KEYS[1], ARGV[1], ARGV[3])
promote(KEYS[3], KEYS[1], ARGV[1], ARGV[3])

local uuid = redis.call('LPOP', KEYS[1])
if not uuid then
  return false
end

redis.call('ZADD', KEYS[3], ARGV[2], uuid)
local attempts = redis.call('HINCRBY', ARGV[3] .. 'job:' .. uuid, 'attempts', 1)
return {uuid, attempts}
`)

// Push enqueues a job visible at now + msg.Delay.
func (d *RedisDriver) Push(ctx context.Context, queue string, msg Message) (string, error) {
	uuids, err := d.Bulk(ctx, queue, []Message{msg})
	if err != nil {
		return "", err
	}
	return uuids[0], nil
}

// Later enqueues a job visible after the delay.
func (d *RedisDriver) Later(ctx context.Context, queue string, delay time.Duration, msg Message) (string, error) {
	msg.Delay = delay
	return d.Push(ctx, queue, msg)
}

// Bulk atomically enqueues a batch in one transaction pipeline.
func (d *RedisDriver) Bulk(ctx context.Context, queue string, msgs []Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if queue == "" {
		queue = DefaultQueue
	}

	now := time.Now()
	uuids := make([]string, 0, len(msgs))

	pipe := d.client.TxPipeline()
	pipe.SAdd(ctx, queuesKey(), queue)

	for _, msg := range msgs {
		job := newJob(bunx.NewJobID(), queue, msg, now)
		payload, err := encodeJob(job)
		if err != nil {
			return nil, err
		}

		pipe.HSet(ctx, jobKey(job.UUID), map[string]any{
			"payload":  payload,
			"priority": job.Priority,
			"attempts": 0,
			"queue":    queue,
		})
		pipe.Expire(ctx, jobKey(job.UUID), d.jobExpiration)

		if msg.Delay > 0 {
			pipe.ZAdd(ctx, delayedKey(queue), redis.Z{Score: float64(job.AvailableAt), Member: job.UUID})
		} else if job.Priority > 0 {
			pipe.LPush(ctx, pendingKey(queue), job.UUID)
		} else {
			pipe.RPush(ctx, pendingKey(queue), job.UUID)
		}

		uuids = append(uuids, job.UUID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("bulk enqueue: %w", err)
	}

	d.metrics.RecordPush(ctx, queue, int64(len(uuids)))
	return uuids, nil
}

// Pop reserves the next pending job or returns (nil, nil) when empty.
func (d *RedisDriver) Pop(ctx context.Context, queue string) (*Job, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	now := time.Now()
	leaseExpiry := now.Add(d.retryAfter)

	result, err := popScript.Run(ctx, d.client,
		[]string{pendingKey(queue), delayedKey(queue), reservedKey(queue)},
		now.Unix(), leaseExpiry.Unix(), keyPrefix,
	).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pop script: %w", err)
	}

	parts, ok := result.([]any)
	if !ok || len(parts) != 2 {
		return nil, nil
	}
	uuid, _ := parts[0].(string)
	attempts, _ := parts[1].(int64)

	payload, err := d.client.HGet(ctx, jobKey(uuid), "payload").Result()
	if err != nil {
		if err == redis.Nil {
			// Hash expired under the reservation; drop the orphan entry.
			d.client.ZRem(ctx, reservedKey(queue), uuid)
			return nil, nil
		}
		return nil, fmt.Errorf("load job hash %s: %w", uuid, err)
	}

	job, err := decodeJob(payload)
	if err != nil {
		return nil, err
	}
	job.Attempts = int(attempts)
	job.Queue = queue

	d.metrics.RecordPop(ctx, queue)
	return job, nil
}

// Release returns a reserved job to pending or delayed, in one transaction.
func (d *RedisDriver) Release(ctx context.Context, job *Job, delay time.Duration) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, reservedKey(job.Queue), job.UUID)
	if delay > 0 {
		availableAt := time.Now().Add(delay).Unix()
		pipe.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: float64(availableAt), Member: job.UUID})
	} else if job.Priority > 0 {
		pipe.LPush(ctx, pendingKey(job.Queue), job.UUID)
	} else {
		pipe.RPush(ctx, pendingKey(job.Queue), job.UUID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release job %s: %w", job.UUID, err)
	}
	return nil
}

// Delete removes the job from every live structure.
func (d *RedisDriver) Delete(ctx context.Context, job *Job) error {
	pipe := d.client.TxPipeline()
	pipe.LRem(ctx, pendingKey(job.Queue), 0, job.UUID)
	pipe.ZRem(ctx, delayedKey(job.Queue), job.UUID)
	pipe.ZRem(ctx, reservedKey(job.Queue), job.UUID)
	pipe.Del(ctx, jobKey(job.UUID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete job %s: %w", job.UUID, err)
	}
	return nil
}

// Fail archives the job payload onto the failed list and removes it from the
// active set.
func (d *RedisDriver) Fail(ctx context.Context, job *Job, cause error) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}

	record := fmt.Sprintf(`{"uuid":%q,"failedAt":%d,"exception":%s,"payload":%s}`,
		job.UUID, time.Now().Unix(), strconv.Quote(cause.Error()), payload)

	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, reservedKey(job.Queue), job.UUID)
	pipe.LRem(ctx, pendingKey(job.Queue), 0, job.UUID)
	pipe.ZRem(ctx, delayedKey(job.Queue), job.UUID)
	pipe.RPush(ctx, failedKey(job.Queue), record)
	pipe.Del(ctx, jobKey(job.UUID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail job %s: %w", job.UUID, err)
	}

	d.metrics.RecordFail(ctx, job.Queue)
	return nil
}

// Size counts pending + delayed + reserved for one queue, or all queues when
// the name is empty.
func (d *RedisDriver) Size(ctx context.Context, queue string) (int64, error) {
	queues, err := d.queueNames(ctx, queue)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range queues {
		pending, err := d.client.LLen(ctx, pendingKey(name)).Result()
		if err != nil {
			return 0, fmt.Errorf("count pending: %w", err)
		}
		delayed, err := d.client.ZCard(ctx, delayedKey(name)).Result()
		if err != nil {
			return 0, fmt.Errorf("count delayed: %w", err)
		}
		reserved, err := d.client.ZCard(ctx, reservedKey(name)).Result()
		if err != nil {
			return 0, fmt.Errorf("count reserved: %w", err)
		}
		total += pending + delayed + reserved
	}
	return total, nil
}

// Purge drops all queue structures and job hashes, returning the job count.
func (d *RedisDriver) Purge(ctx context.Context, queue string) (int64, error) {
	queues, err := d.queueNames(ctx, queue)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range queues {
		count, err := d.Size(ctx, name)
		if err != nil {
			return 0, err
		}

		uuids, err := d.client.LRange(ctx, pendingKey(name), 0, -1).Result()
		if err != nil {
			return 0, fmt.Errorf("list pending: %w", err)
		}
		for _, zset := range []string{delayedKey(name), reservedKey(name)} {
			members, err := d.client.ZRange(ctx, zset, 0, -1).Result()
			if err != nil {
				return 0, fmt.Errorf("list %s: %w", zset, err)
			}
			uuids = append(uuids, members...)
		}

		pipe := d.client.TxPipeline()
		for _, uuid := range uuids {
			pipe.Del(ctx, jobKey(uuid))
		}
		pipe.Del(ctx, pendingKey(name), delayedKey(name), reservedKey(name))
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("purge queue %s: %w", name, err)
		}

		total += count
	}
	return total, nil
}

// Stats reports backlog totals broken down by state.
func (d *RedisDriver) Stats(ctx context.Context, queue string) (*Stats, error) {
	queues, err := d.queueNames(ctx, queue)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Queues: queues}
	for _, name := range queues {
		pending, err := d.client.LLen(ctx, pendingKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("count pending: %w", err)
		}
		delayed, err := d.client.ZCard(ctx, delayedKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("count delayed: %w", err)
		}
		reserved, err := d.client.ZCard(ctx, reservedKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("count reserved: %w", err)
		}
		failed, err := d.client.LLen(ctx, failedKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("count failed: %w", err)
		}

		stats.Pending += pending
		stats.Delayed += delayed
		stats.Reserved += reserved
		stats.Failed += failed
	}
	stats.Total = stats.Pending + stats.Delayed + stats.Reserved
	return stats, nil
}

// HealthCheck pings the kv store and reports round-trip time.
func (d *RedisDriver) HealthCheck(ctx context.Context) *Health {
	start := time.Now()
	err := d.client.Ping(ctx).Err()
	rtt := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		return &Health{Healthy: false, Detail: err.Error(), RTTMs: rtt}
	}
	return &Health{Healthy: true, Detail: "redis reachable", RTTMs: rtt}
}

func (d *RedisDriver) queueNames(ctx context.Context, queue string) ([]string, error) {
	if queue != "" {
		return []string{queue}, nil
	}
	names, err := d.client.SMembers(ctx, queuesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return names, nil
}
