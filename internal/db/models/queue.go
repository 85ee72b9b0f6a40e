package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Job is a row in the relational queue. Timestamps are integer epoch seconds
// so the claim/sweep predicates compare directly against the index
// (queue, reserved_at, available_at, priority).
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          int64   `bun:"id,pk,autoincrement"`
	UUID        string  `bun:"uuid,notnull,unique"`
	Queue       string  `bun:"queue,notnull"`
	Payload     string  `bun:"payload,notnull,type:text"`
	Attempts    int     `bun:"attempts,notnull,default:0"`
	ReservedAt  *int64  `bun:"reserved_at"`
	AvailableAt int64   `bun:"available_at,notnull"`
	CreatedAt   int64   `bun:"created_at,notnull"`
	Priority    int     `bun:"priority,notnull,default:0"`
	BatchUUID   *string `bun:"batch_uuid"`
}

// FailedJob archives a job whose attempts reached maxAttempts.
type FailedJob struct {
	bun.BaseModel `bun:"table:failed_jobs,alias:fj"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UUID       string    `bun:"uuid,notnull,unique"`
	Connection string    `bun:"connection,notnull"`
	Queue      string    `bun:"queue,notnull"`
	Payload    string    `bun:"payload,notnull,type:text"`
	Exception  string    `bun:"exception,notnull,type:text"`
	BatchUUID  *string   `bun:"batch_uuid"`
	FailedAt   time.Time `bun:"failed_at,notnull,default:current_timestamp"`
}
