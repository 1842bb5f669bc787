package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string, attempts, maxCalls int) *StepClient {
	return NewStepClient(url, "test-token", 5*time.Second, attempts, time.Millisecond, maxCalls)
}

func TestStepClientPostsJSONWithBearer(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody planTopicsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "plan": "outline"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 0)
	var resp planTopicsResponse
	err := c.Invoke(context.Background(), StepPlanTopics,
		planTopicsRequest{EpisodeDate: "2024-06-01"}, &resp)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if gotPath != "/plan-topics" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody.EpisodeDate != "2024-06-01" {
		t.Errorf("body = %+v", gotBody)
	}
	if resp.Plan != "outline" {
		t.Errorf("plan = %q", resp.Plan)
	}
}

func TestStepClientRetriesServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(status)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "plan": "outline"})
		}))

		c := newTestClient(srv.URL, 3, 0)
		var resp planTopicsResponse
		err := c.Invoke(context.Background(), StepPlanTopics, planTopicsRequest{}, &resp)
		srv.Close()

		if err != nil {
			t.Errorf("status %d: Invoke after retries: %v", status, err)
		}
		if calls != 3 {
			t.Errorf("status %d: calls = %d, want 3", status, calls)
		}
	}
}

func TestStepClientExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 0)
	var resp planTopicsResponse
	err := c.Invoke(context.Background(), StepPlanTopics, planTopicsRequest{}, &resp)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("err = %v", err)
	}
}

func TestStepClientDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad payload"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 0)
	var resp planTopicsResponse
	err := c.Invoke(context.Background(), StepPlanTopics, planTopicsRequest{}, &resp)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, 4xx must not be retried", calls)
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v", err)
	}
}

func TestStepClientTreatsOkFalseAsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "model refused"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 0)
	var resp planTopicsResponse
	err := c.Invoke(context.Background(), StepPlanTopics, planTopicsRequest{}, &resp)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, ok:false must not be retried", calls)
	}
	if !strings.Contains(err.Error(), "model refused") {
		t.Errorf("err = %v", err)
	}
}

func TestStepClientRejectsMalformedResponse(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 0)
	var resp planTopicsResponse
	err := c.Invoke(context.Background(), StepPlanTopics, planTopicsRequest{}, &resp)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, decode failures must not be retried", calls)
	}
}

func TestStepClientBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "plan": "outline"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		var resp planTopicsResponse
		if err := c.Invoke(ctx, StepPlanTopics, planTopicsRequest{}, &resp); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	var resp planTopicsResponse
	err := c.Invoke(ctx, StepPlanTopics, planTopicsRequest{}, &resp)
	if err == nil {
		t.Fatal("third call should exceed the budget")
	}
	if !strings.Contains(err.Error(), "budget exhausted") {
		t.Errorf("err = %v", err)
	}

	c.ResetBudget()
	if err := c.Invoke(ctx, StepPlanTopics, planTopicsRequest{}, &resp); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}
