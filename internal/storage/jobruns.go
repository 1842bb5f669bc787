package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trendcast/internal/ledger"
)

// Get implements ledger.Repository.
func (s *Store) Get(ctx context.Context, job, step, key string) (*ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_name, step_name, idempotency_key, status, payload, episode_id, error, started_at, finished_at
		FROM job_runs
		WHERE job_name = ? AND step_name = ? AND idempotency_key = ?`,
		job, step, key)

	rec, err := scanJobRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job run %s/%s/%s: %w", job, step, key, err)
	}
	return rec, nil
}

// Upsert implements ledger.Repository against the unique three-part key.
func (s *Store) Upsert(ctx context.Context, rec *ledger.Record) error {
	var finished any
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (job_name, step_name, idempotency_key, status, payload, episode_id, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_name, step_name, idempotency_key) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			episode_id = excluded.episode_id,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		rec.JobName, rec.StepName, rec.Key, string(rec.Status), rec.Payload,
		rec.EpisodeID, rec.Error, rec.StartedAt.UTC().Format(time.RFC3339Nano), finished)
	if err != nil {
		return fmt.Errorf("upsert job run %s/%s/%s: %w", rec.JobName, rec.StepName, rec.Key, err)
	}
	return nil
}

// ListByKeyPrefix implements ledger.Repository for run inspection.
func (s *Store) ListByKeyPrefix(ctx context.Context, job, keyPrefix string) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_name, step_name, idempotency_key, status, payload, episode_id, error, started_at, finished_at
		FROM job_runs
		WHERE job_name = ? AND idempotency_key LIKE ?
		ORDER BY started_at DESC`,
		job, keyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		rec, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRun(row rowScanner) (*ledger.Record, error) {
	var rec ledger.Record
	var status, startedAt string
	var finishedAt sql.NullString

	if err := row.Scan(&rec.JobName, &rec.StepName, &rec.Key, &status, &rec.Payload,
		&rec.EpisodeID, &rec.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	rec.Status = ledger.Status(status)
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			rec.FinishedAt = t
		}
	}
	return &rec, nil
}
