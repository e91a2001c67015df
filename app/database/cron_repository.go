package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CronJobRepository records the status of background jobs
type CronJobRepository struct {
	db *DB
}

// NewCronJobRepository creates a new cron job repository
func NewCronJobRepository(db *DB) *CronJobRepository {
	return &CronJobRepository{db: db}
}

// UpdateStatus upserts the status of job name. A completed run bumps the run
// count and records its duration; a failed run records the error.
func (r *CronJobRepository) UpdateStatus(ctx context.Context, name, status string, duration time.Duration, runErr error) error {
	now := time.Now().UTC()
	insert := sq.Insert("cron_jobs").Columns("name", "status", "last_run", "last_error", "run_count", "average_duration_seconds")

	switch status {
	case CronStatusRunning:
		insert = insert.Values(name, status, now, nil, 0, 0).
			Suffix("ON CONFLICT (name) DO UPDATE SET status = excluded.status, last_run = excluded.last_run")
	case CronStatusCompleted:
		insert = insert.Values(name, status, now, nil, 1, duration.Seconds()).
			Suffix(`ON CONFLICT (name) DO UPDATE SET
				status = excluded.status,
				last_error = NULL,
				run_count = cron_jobs.run_count + 1,
				average_duration_seconds = excluded.average_duration_seconds`)
	case CronStatusFailed:
		msg := "unknown error"
		if runErr != nil {
			msg = runErr.Error()
		}
		insert = insert.Values(name, status, now, msg, 0, 0).
			Suffix("ON CONFLICT (name) DO UPDATE SET status = excluded.status, last_error = excluded.last_error")
	default:
		return fmt.Errorf("unknown cron status %q", status)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build cron status upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update cron status: %w", err)
	}
	return nil
}

// ListCronJobs returns all job statuses ordered by name
func (r *CronJobRepository) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	query, args, err := sq.Select("name", "status", "last_run", "last_error", "run_count", "average_duration_seconds").
		From("cron_jobs").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build cron query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []CronJob
	for rows.Next() {
		var j CronJob
		var lastRun sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&j.Name, &j.Status, &lastRun, &lastError, &j.RunCount, &j.AverageDurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan cron job: %w", err)
		}
		if lastRun.Valid {
			t := lastRun.Time
			j.LastRun = &t
		}
		j.LastError = lastError.String
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cron jobs: %w", err)
	}

	return jobs, nil
}
