package migrations

import (
	"context"
	"fmt"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260801000002, down_20260801000002)
}

// up_20260801000002 creates the jobs and failed_jobs tables
func up_20260801000002(ctx context.Context, db *bun.DB) error {
	// 1. Create jobs table
	fmt.Print(" [up] creating jobs table...")
	_, err := db.NewCreateTable().
		Model((*models.Job)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	// Claim predicate index: queue + reservation + visibility + priority
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, reserved_at, available_at, priority)`)
	if err != nil {
		return fmt.Errorf("failed to create jobs claim index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_batch ON jobs(batch_uuid)`)
	if err != nil {
		return fmt.Errorf("failed to create jobs batch index: %w", err)
	}
	fmt.Println(" OK")

	// 2. Create failed_jobs table
	fmt.Print(" [up] creating failed_jobs table...")
	_, err = db.NewCreateTable().
		Model((*models.FailedJob)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create failed_jobs table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260801000002 drops the queue tables
func down_20260801000002(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"failed_jobs", "jobs"} {
		if _, err := db.Exec(dropTable(db, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
	}
	return nil
}
