package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotPending  = errors.New("job is not pending")
	ErrPresetNotFound = errors.New("printer preset not found")
	ErrPresetExists   = errors.New("printer preset already exists")
)

const DefaultRecentLimit = 50

// JobStore persists print jobs. All mutations go through the single
// connection opened by Open, so callers need no extra locking.
type JobStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobStore(conn *sql.DB) *JobStore {
	return &JobStore{
		db:  conn,
		now: nowUTC,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *JobStore) Enqueue(ctx context.Context, content, printerConfig string) (int64, error) {
	result, err := s.db.ExecContext(ctx, InsertJob, content, printerConfig, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get job id: %w", err)
	}
	return id, nil
}

func (s *JobStore) GetJob(ctx context.Context, id int64) (*PrintJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, GetJobByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// FetchPendingBatch returns at most limit pending jobs, oldest first.
func (s *JobStore) FetchPendingBatch(ctx context.Context, limit int) ([]*PrintJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, GetPendingBatch, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*PrintJob, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, ListRecentJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *JobStore) MarkPrinted(ctx context.Context, id int64) error {
	return s.transition(ctx, "mark job printed", MarkJobPrinted, s.now(), id)
}

func (s *JobStore) MarkRetry(ctx context.Context, id int64, retryCount int) error {
	return s.transition(ctx, "mark job for retry", MarkJobRetry, retryCount, id)
}

// MarkFailed records the final attempt count and the failure in one update.
func (s *JobStore) MarkFailed(ctx context.Context, id int64, retryCount int, reason string) error {
	return s.transition(ctx, "mark job failed", MarkJobFailed, retryCount, reason, id)
}

func (s *JobStore) MarkError(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, "mark job error", MarkJobError, reason, id)
}

// transition applies a status update that is only valid while the job is
// pending; terminal rows are left untouched and reported as ErrJobNotPending.
func (s *JobStore) transition(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrJobNotPending
	}
	return nil
}

func (s *JobStore) QueueStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, CountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		stats.Total += count
		switch JobStatus(status) {
		case JobStatusPending:
			stats.Pending = count
		case JobStatusPrinted:
			stats.Printed = count
		case JobStatusFailed:
			stats.Failed = count
		case JobStatusError:
			stats.Error = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	return stats, nil
}

// PurgeTerminal deletes printed and failed jobs. Rows in error status are
// kept on purpose until product intent for them is settled.
func (s *JobStore) PurgeTerminal(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, DeleteTerminalJobs)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	var printedAt sql.NullTime
	var errorMessage sql.NullString
	if err := row.Scan(
		&j.ID, &j.Content, &j.PrinterConfig, &j.Status,
		&j.CreatedAt, &printedAt, &errorMessage, &j.RetryCount); err != nil {
		return nil, err
	}
	if printedAt.Valid {
		t := printedAt.Time
		j.PrintedAt = &t
	}
	j.ErrorMessage = errorMessage.String
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
