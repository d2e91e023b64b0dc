// Package postgres implements ports.JobStore on PostgreSQL, so job progress
// survives restarts and can be polled from any API instance.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"bulk-sms-dispatch/internal/domain"
)

// Store implements ports.JobStore.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool and returns a Store.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new job row.
func (s *Store) Create(ctx context.Context, job domain.DispatchJob) error {
	const q = `
		INSERT INTO dispatch_jobs
			(id, total, completed, success_count, fail_count, current_batch,
			 total_batches, percentage, status, estimated_remaining_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, q,
		job.ID, job.Total, job.Completed, job.SuccessCount, job.FailCount,
		job.CurrentBatch, job.TotalBatches, job.Percentage, job.Status,
		job.EstimatedRemaining.Milliseconds(), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dispatch job: %w", err)
	}
	return nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(ctx context.Context, id string) (domain.DispatchJob, error) {
	const q = `
		SELECT id, total, completed, success_count, fail_count, current_batch,
		       total_batches, percentage, status, estimated_remaining_ms, created_at
		FROM dispatch_jobs
		WHERE id = $1
	`
	return scanJob(s.db.QueryRowContext(ctx, q, id))
}

// Update applies fn to the job inside a transaction holding the row lock,
// serializing concurrent progress reports for the same job.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.DispatchJob) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const sel = `
		SELECT id, total, completed, success_count, fail_count, current_batch,
		       total_batches, percentage, status, estimated_remaining_ms, created_at
		FROM dispatch_jobs
		WHERE id = $1
		FOR UPDATE
	`
	job, err := scanJob(tx.QueryRowContext(ctx, sel, id))
	if err != nil {
		return err
	}

	if err := fn(&job); err != nil {
		return err
	}

	const upd = `
		UPDATE dispatch_jobs
		SET completed = $2, success_count = $3, fail_count = $4,
		    current_batch = $5, total_batches = $6, percentage = $7,
		    status = $8, estimated_remaining_ms = $9
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, upd,
		job.ID, job.Completed, job.SuccessCount, job.FailCount,
		job.CurrentBatch, job.TotalBatches, job.Percentage, job.Status,
		job.EstimatedRemaining.Milliseconds()); err != nil {
		return fmt.Errorf("update dispatch job: %w", err)
	}

	return tx.Commit()
}

// Prune removes terminal jobs older than the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	const q = `
		DELETE FROM dispatch_jobs
		WHERE status IN ('completed', 'failed') AND created_at < $1
	`
	res, err := s.db.ExecContext(ctx, q, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune dispatch jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.DispatchJob, error) {
	var (
		j           domain.DispatchJob
		status      string
		remainingMS int64
	)
	err := row.Scan(&j.ID, &j.Total, &j.Completed, &j.SuccessCount, &j.FailCount,
		&j.CurrentBatch, &j.TotalBatches, &j.Percentage, &status, &remainingMS, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DispatchJob{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.DispatchJob{}, fmt.Errorf("scan dispatch job: %w", err)
	}
	j.Status = domain.JobStatus(status)
	j.EstimatedRemaining = time.Duration(remainingMS) * time.Millisecond
	return j, nil
}
