// Package ledger implements the idempotency ledger: a keyed record store
// guaranteeing at-most-one successful execution per (job, step, key) tuple.
package ledger

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Record is one ledger row. The (JobName, StepName, Key) tuple is unique in
// storage and is the sole source of truth for "has this work completed".
type Record struct {
	JobName    string
	StepName   string
	Key        string
	Status     Status
	Payload    string
	EpisodeID  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Repository is the narrow storage contract the ledger needs. Get returns
// (nil, nil) when no record exists for the key.
type Repository interface {
	Get(ctx context.Context, job, step, key string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	ListByKeyPrefix(ctx context.Context, job, keyPrefix string) ([]Record, error)
}

type Ledger struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// StartResult tells the caller whether the unit of work already completed.
type StartResult struct {
	ShouldSkip bool
	Status     Status
}

// StartRun claims the key. A prior terminal succeeded/skipped record returns
// ShouldSkip=true without mutating anything; a prior failed or orphaned
// started record is overwritten and the run proceeds.
func (l *Ledger) StartRun(ctx context.Context, job, step, key, payload, episodeID string) (StartResult, error) {
	existing, err := l.repo.Get(ctx, job, step, key)
	if err != nil {
		return StartResult{}, fmt.Errorf("ledger lookup %s/%s/%s: %w", job, step, key, err)
	}
	if existing != nil && (existing.Status == StatusSucceeded || existing.Status == StatusSkipped) {
		return StartResult{ShouldSkip: true, Status: existing.Status}, nil
	}

	rec := &Record{
		JobName:   job,
		StepName:  step,
		Key:       key,
		Status:    StatusStarted,
		Payload:   payload,
		EpisodeID: episodeID,
		StartedAt: l.now().UTC(),
	}
	if err := l.repo.Upsert(ctx, rec); err != nil {
		return StartResult{}, fmt.Errorf("ledger start %s/%s/%s: %w", job, step, key, err)
	}
	return StartResult{ShouldSkip: false, Status: StatusStarted}, nil
}

// FinishRun transitions the record to a terminal success state and clears any
// prior error. Status must be succeeded or skipped.
func (l *Ledger) FinishRun(ctx context.Context, job, step, key string, status Status, payload, episodeID string) error {
	if status != StatusSucceeded && status != StatusSkipped {
		return fmt.Errorf("finish status must be succeeded or skipped, got %q", status)
	}
	return l.terminate(ctx, job, step, key, status, payload, episodeID, "")
}

// FailRun transitions the record to failed with the error message attached.
// A failed key may be retried by a later StartRun.
func (l *Ledger) FailRun(ctx context.Context, job, step, key, errMsg, payload, episodeID string) error {
	return l.terminate(ctx, job, step, key, StatusFailed, payload, episodeID, errMsg)
}

func (l *Ledger) terminate(ctx context.Context, job, step, key string, status Status, payload, episodeID, errMsg string) error {
	existing, err := l.repo.Get(ctx, job, step, key)
	if err != nil {
		return fmt.Errorf("ledger lookup %s/%s/%s: %w", job, step, key, err)
	}

	rec := &Record{
		JobName:   job,
		StepName:  step,
		Key:       key,
		Status:    status,
		Payload:   payload,
		EpisodeID: episodeID,
		Error:     errMsg,
		StartedAt: l.now().UTC(),
	}
	if existing != nil {
		rec.StartedAt = existing.StartedAt
		if episodeID == "" {
			rec.EpisodeID = existing.EpisodeID
		}
	}
	rec.FinishedAt = l.now().UTC()

	if err := l.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("ledger %s %s/%s/%s: %w", status, job, step, key, err)
	}
	return nil
}

// List returns ledger rows for a job whose key starts with keyPrefix, for
// failed-run inspection.
func (l *Ledger) List(ctx context.Context, job, keyPrefix string) ([]Record, error) {
	return l.repo.ListByKeyPrefix(ctx, job, keyPrefix)
}
