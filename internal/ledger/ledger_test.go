package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeRepo struct {
	records map[string]*Record
	getErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*Record{}}
}

func (f *fakeRepo) key(job, step, key string) string {
	return job + "|" + step + "|" + key
}

func (f *fakeRepo) Get(ctx context.Context, job, step, key string) (*Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[f.key(job, step, key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) Upsert(ctx context.Context, rec *Record) error {
	cp := *rec
	f.records[f.key(rec.JobName, rec.StepName, rec.Key)] = &cp
	return nil
}

func (f *fakeRepo) ListByKeyPrefix(ctx context.Context, job, keyPrefix string) ([]Record, error) {
	var out []Record
	for _, rec := range f.records {
		if rec.JobName == job && strings.HasPrefix(rec.Key, keyPrefix) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func testLedger(repo Repository) *Ledger {
	l := New(repo)
	l.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return l
}

func TestStartRunFreshKey(t *testing.T) {
	repo := newFakeRepo()
	l := testLedger(repo)

	res, err := l.StartRun(context.Background(), "daily-generate", "orchestrate", "2024-06-01", "{}", "")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if res.ShouldSkip {
		t.Error("fresh key should not skip")
	}
	if res.Status != StatusStarted {
		t.Errorf("status = %q, want %q", res.Status, StatusStarted)
	}

	rec, _ := repo.Get(context.Background(), "daily-generate", "orchestrate", "2024-06-01")
	if rec == nil || rec.Status != StatusStarted {
		t.Fatalf("started record not persisted: %+v", rec)
	}
}

func TestStartRunSkipsAfterSuccess(t *testing.T) {
	repo := newFakeRepo()
	l := testLedger(repo)
	ctx := context.Background()

	if _, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.FinishRun(ctx, "daily-generate", "orchestrate", "k", StatusSucceeded, `{"ok":true}`, "ep-1"); err != nil {
		t.Fatal(err)
	}

	// Repeat calls keep skipping, the record stays terminal.
	for i := 0; i < 2; i++ {
		res, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", "")
		if err != nil {
			t.Fatal(err)
		}
		if !res.ShouldSkip {
			t.Fatalf("call %d after success should skip", i+1)
		}
		if res.Status != StatusSucceeded {
			t.Errorf("call %d status = %q, want %q", i+1, res.Status, StatusSucceeded)
		}
	}

	rec, _ := repo.Get(ctx, "daily-generate", "orchestrate", "k")
	if rec.Status != StatusSucceeded || rec.EpisodeID != "ep-1" {
		t.Errorf("terminal record mutated by skipped start: %+v", rec)
	}
}

func TestStartRunRetriesAfterFailure(t *testing.T) {
	repo := newFakeRepo()
	l := testLedger(repo)
	ctx := context.Background()

	if _, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.FailRun(ctx, "daily-generate", "orchestrate", "k", "step_failed:tts", "{}", "ep-1"); err != nil {
		t.Fatal(err)
	}

	res, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ShouldSkip {
		t.Error("failed key should be retryable")
	}
	rec, _ := repo.Get(ctx, "daily-generate", "orchestrate", "k")
	if rec.Status != StatusStarted {
		t.Errorf("retried record status = %q, want %q", rec.Status, StatusStarted)
	}
}

func TestStartRunOverwritesOrphanedStart(t *testing.T) {
	repo := newFakeRepo()
	l := testLedger(repo)
	ctx := context.Background()

	if _, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", ""); err != nil {
		t.Fatal(err)
	}
	res, err := l.StartRun(ctx, "daily-generate", "orchestrate", "k", "{}", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ShouldSkip {
		t.Error("orphaned started record should not block a new run")
	}
}

func TestFinishRunRejectsNonTerminalStatus(t *testing.T) {
	l := testLedger(newFakeRepo())
	err := l.FinishRun(context.Background(), "j", "s", "k", StatusStarted, "", "")
	if err == nil {
		t.Error("finishing with started status should fail")
	}
}

func TestTerminatePreservesStartAndEpisode(t *testing.T) {
	repo := newFakeRepo()
	l := New(repo)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return start }
	if _, err := l.StartRun(ctx, "j", "s", "k", "{}", "ep-1"); err != nil {
		t.Fatal(err)
	}

	finish := start.Add(5 * time.Minute)
	l.now = func() time.Time { return finish }
	if err := l.FailRun(ctx, "j", "s", "k", "boom", "{}", ""); err != nil {
		t.Fatal(err)
	}

	rec, _ := repo.Get(ctx, "j", "s", "k")
	if !rec.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want original %v", rec.StartedAt, start)
	}
	if !rec.FinishedAt.Equal(finish) {
		t.Errorf("FinishedAt = %v, want %v", rec.FinishedAt, finish)
	}
	if rec.EpisodeID != "ep-1" {
		t.Errorf("EpisodeID = %q, empty terminate should keep the existing id", rec.EpisodeID)
	}
	if rec.Error != "boom" {
		t.Errorf("Error = %q, want %q", rec.Error, "boom")
	}
}

func TestStartRunWrapsRepositoryError(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = errors.New("db locked")
	l := testLedger(repo)

	_, err := l.StartRun(context.Background(), "j", "s", "k", "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, repo.getErr) {
		t.Errorf("repository error not wrapped: %v", err)
	}
}

func TestList(t *testing.T) {
	repo := newFakeRepo()
	l := testLedger(repo)
	ctx := context.Background()

	for _, key := range []string{"2024-06-01", "2024-06-02", "2024-07-01"} {
		if _, err := l.StartRun(ctx, "daily-generate", "orchestrate", key, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.List(ctx, "daily-generate", "2024-06")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("List returned %d records, want 2", len(got))
	}
}
