package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Defaults applied when a message leaves them zero.
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 60 // seconds
	DefaultQueue       = "default"

	// DefaultRetryAfter is the reservation lease: a popped job returns to
	// pending this long after reservation unless deleted or failed.
	DefaultRetryAfter = 90 * time.Second

	// DefaultJobExpiration bounds how long the kv driver retains job hashes.
	DefaultJobExpiration = time.Hour
)

// Message describes a job to enqueue.
type Message struct {
	Handler     string
	Data        map[string]any
	Delay       time.Duration
	Priority    int
	MaxAttempts int
	Timeout     int // seconds
	BatchUUID   string
}

// Job is a reserved unit of work as returned by Pop. Attempts reflects the
// reservation that produced it (a first pop returns Attempts == 1).
type Job struct {
	UUID        string         `json:"uuid" mapstructure:"uuid"`
	Handler     string         `json:"job" mapstructure:"job"`
	Data        map[string]any `json:"data" mapstructure:"data"`
	Attempts    int            `json:"attempts" mapstructure:"attempts"`
	MaxAttempts int            `json:"maxAttempts" mapstructure:"maxAttempts"`
	Timeout     int            `json:"timeout" mapstructure:"timeout"`
	Priority    int            `json:"priority" mapstructure:"priority"`
	Queue       string         `json:"queue" mapstructure:"queue"`
	PushedAt    int64          `json:"pushedAt" mapstructure:"pushedAt"`
	AvailableAt int64          `json:"availableAt" mapstructure:"availableAt"`
	BatchUUID   *string        `json:"batchUuid" mapstructure:"batchUuid"`
}

// Decode maps the job's data payload onto a typed struct so handlers do not
// juggle map[string]any.
func (j *Job) Decode(dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build payload decoder: %w", err)
	}
	if err := decoder.Decode(j.Data); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Stats summarizes a driver's backlog.
type Stats struct {
	Total    int64    `json:"total"`
	Pending  int64    `json:"pending"`
	Delayed  int64    `json:"delayed"`
	Reserved int64    `json:"reserved"`
	Failed   int64    `json:"failed"`
	Queues   []string `json:"queues"`
}

// Health is the result of a driver health check.
type Health struct {
	Healthy bool    `json:"healthy"`
	Detail  string  `json:"detail"`
	RTTMs   float64 `json:"rttMs"`
}

// Driver is the queue contract implemented by the relational and kv-atomic
// backends. Drivers are safe for any number of concurrent producers and
// consumers; cross-process safety comes from the backing store's
// transactions, never from in-process locks.
//
// Pop returns (nil, nil) when the queue is empty — an empty queue is not an
// error.
type Driver interface {
	// Push enqueues a job visible immediately (or after msg.Delay) and
	// returns its uuid.
	Push(ctx context.Context, queue string, msg Message) (string, error)
	// Later enqueues a job visible after the given delay.
	Later(ctx context.Context, queue string, delay time.Duration, msg Message) (string, error)
	// Bulk atomically enqueues a batch and returns uuids in input order.
	Bulk(ctx context.Context, queue string, msgs []Message) ([]string, error)
	// Pop reserves the next available job: highest priority first, oldest
	// availableAt next. The reservation lease expires retryAfter later.
	Pop(ctx context.Context, queue string) (*Job, error)
	// Release returns a reserved job to pending (delay 0) or delayed,
	// preserving its attempt count.
	Release(ctx context.Context, job *Job, delay time.Duration) error
	// Delete removes a job permanently.
	Delete(ctx context.Context, job *Job) error
	// Fail archives the job to the failed store and removes it from the
	// active set.
	Fail(ctx context.Context, job *Job, cause error) error
	// Size counts pending + delayed + reserved jobs; empty queue name means
	// all queues.
	Size(ctx context.Context, queue string) (int64, error)
	// Purge deletes all jobs and returns the count removed.
	Purge(ctx context.Context, queue string) (int64, error)
	Stats(ctx context.Context, queue string) (*Stats, error)
	HealthCheck(ctx context.Context) *Health
}

// newJob builds the payload envelope for a message.
func newJob(uuid, queue string, msg Message, now time.Time) *Job {
	job := &Job{
		UUID:        uuid,
		Handler:     msg.Handler,
		Data:        msg.Data,
		Attempts:    0,
		MaxAttempts: msg.MaxAttempts,
		Timeout:     msg.Timeout,
		Priority:    msg.Priority,
		Queue:       queue,
		PushedAt:    now.Unix(),
		AvailableAt: now.Add(msg.Delay).Unix(),
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.Timeout <= 0 {
		job.Timeout = DefaultTimeout
	}
	if job.Queue == "" {
		job.Queue = DefaultQueue
	}
	if msg.BatchUUID != "" {
		batch := msg.BatchUUID
		job.BatchUUID = &batch
	}
	return job
}

func encodeJob(job *Job) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	return string(raw), nil
}

func decodeJob(raw string) (*Job, error) {
	job := new(Job)
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return job, nil
}
