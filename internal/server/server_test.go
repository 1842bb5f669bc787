package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"trendcast/internal/ledger"
	"trendcast/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeRunner struct {
	lastReq pipeline.Request
	outcome pipeline.Outcome
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) pipeline.Outcome {
	f.lastReq = req
	return f.outcome
}

type fakeRuns struct {
	records []ledger.Record
	err     error
}

func (f *fakeRuns) List(ctx context.Context, job, keyPrefix string) ([]ledger.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ledger.Record
	for _, rec := range f.records {
		if strings.HasPrefix(rec.Key, keyPrefix) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestDailyGenerateOK(t *testing.T) {
	runner := &fakeRunner{outcome: pipeline.Outcome{Ok: true, EpisodeDate: "2024-06-01"}}
	router := NewRouter(runner, &fakeRuns{})

	body := strings.NewReader(`{"episodeDate":"2024-06-01","skipTts":true}`)
	req := httptest.NewRequest(http.MethodPost, "/daily-generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if runner.lastReq.EpisodeDate != "2024-06-01" || !runner.lastReq.SkipTTS {
		t.Errorf("request not bound: %+v", runner.lastReq)
	}

	var out pipeline.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Ok || out.EpisodeDate != "2024-06-01" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestDailyGenerateEmptyBody(t *testing.T) {
	runner := &fakeRunner{outcome: pipeline.Outcome{Ok: true}}
	router := NewRouter(runner, &fakeRuns{})

	req := httptest.NewRequest(http.MethodPost, "/daily-generate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, empty body should default the request", w.Code)
	}
}

func TestDailyGenerateBadJSON(t *testing.T) {
	runner := &fakeRunner{outcome: pipeline.Outcome{Ok: true}}
	router := NewRouter(runner, &fakeRuns{})

	req := httptest.NewRequest(http.MethodPost, "/daily-generate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDailyGenerateFailureIs500(t *testing.T) {
	runner := &fakeRunner{outcome: pipeline.Outcome{Ok: false, Error: "script_too_short"}}
	router := NewRouter(runner, &fakeRuns{})

	req := httptest.NewRequest(http.MethodPost, "/daily-generate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "script_too_short") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestListRuns(t *testing.T) {
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	runs := &fakeRuns{records: []ledger.Record{
		{
			JobName:    pipeline.JobName,
			StepName:   pipeline.StepOrchestrate,
			Key:        "2024-06-01",
			Status:     ledger.StatusSucceeded,
			EpisodeID:  "2024-06-01",
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
		},
		{
			JobName:   pipeline.JobName,
			StepName:  pipeline.StepOrchestrate,
			Key:       "2024-05-31",
			Status:    ledger.StatusFailed,
			Error:     "step_failed:tts",
			StartedAt: started.Add(-24 * time.Hour),
		},
	}}
	router := NewRouter(&fakeRunner{}, runs)

	req := httptest.NewRequest(http.MethodGet, "/runs?date=2024-06-01", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Ok   bool `json:"ok"`
		Runs []struct {
			Key        string `json:"idempotencyKey"`
			Status     string `json:"status"`
			EpisodeID  string `json:"episodeId"`
			FinishedAt string `json:"finishedAt"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Ok || len(body.Runs) != 1 {
		t.Fatalf("body = %s", w.Body.String())
	}
	if body.Runs[0].Key != "2024-06-01" || body.Runs[0].Status != "succeeded" {
		t.Errorf("run = %+v", body.Runs[0])
	}
	if body.Runs[0].FinishedAt == "" {
		t.Error("finished run missing finishedAt")
	}
}

func TestListRunsLedgerError(t *testing.T) {
	router := NewRouter(&fakeRunner{}, &fakeRuns{err: errors.New("db locked")})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ledger_unavailable") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(&fakeRunner{}, &fakeRuns{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK && w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "status") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(&fakeRunner{}, &fakeRuns{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if _, ok := stats["runs_succeeded"]; !ok {
		t.Errorf("metrics missing counters: %v", stats)
	}
}
