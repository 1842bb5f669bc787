package metrics

import (
	"testing"
	"time"
)

func TestCountersAndStats(t *testing.T) {
	m := &Metrics{IsHealthy: true}

	m.AddTrendItemsProcessed(7)
	m.IncrementStepCalls()
	m.IncrementStepCalls()
	m.IncrementStepRetries()
	m.IncrementRunsSucceeded()
	m.AddFallbackTopicsInjected(2)

	stats := m.GetStats()
	if stats["trend_items_processed"] != int64(7) {
		t.Errorf("trend_items_processed = %v", stats["trend_items_processed"])
	}
	if stats["step_calls_total"] != int64(2) {
		t.Errorf("step_calls_total = %v", stats["step_calls_total"])
	}
	if stats["step_retries"] != int64(1) {
		t.Errorf("step_retries = %v", stats["step_retries"])
	}
	if stats["runs_succeeded"] != int64(1) {
		t.Errorf("runs_succeeded = %v", stats["runs_succeeded"])
	}
	if stats["fallback_topics_injected"] != int64(2) {
		t.Errorf("fallback_topics_injected = %v", stats["fallback_topics_injected"])
	}
}

func TestErrorAndRecovery(t *testing.T) {
	m := &Metrics{IsHealthy: true}

	m.SetError("step_failed:tts")
	stats := m.GetStats()
	if stats["is_healthy"] != false {
		t.Error("error should mark unhealthy")
	}
	if stats["last_error"] != "step_failed:tts" {
		t.Errorf("last_error = %v", stats["last_error"])
	}

	m.SetLastRun()
	if m.GetStats()["is_healthy"] != true {
		t.Error("successful run should restore health")
	}
}

func TestRunDurationAverage(t *testing.T) {
	m := &Metrics{}
	m.RecordRunDuration(2 * time.Second)
	m.RecordRunDuration(4 * time.Second)

	if m.LastRunDuration != 4*time.Second {
		t.Errorf("LastRunDuration = %v", m.LastRunDuration)
	}
	if m.AverageRunDuration != 3*time.Second {
		t.Errorf("AverageRunDuration = %v", m.AverageRunDuration)
	}
}
