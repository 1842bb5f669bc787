package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	TrendItemsProcessed    int64
	DuplicatesFiltered     int64
	FallbackTopicsInjected int64
	StepCallsTotal         int64
	StepRetries            int64
	RunsSucceeded          int64
	RunsFailed             int64
	RunsSkipped            int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration
	RunCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddTrendItemsProcessed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrendItemsProcessed += int64(n)
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) AddFallbackTopicsInjected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackTopicsInjected += int64(n)
}

func (m *Metrics) IncrementStepCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepCallsTotal++
}

func (m *Metrics) IncrementStepRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepRetries++
}

func (m *Metrics) IncrementRunsSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsSucceeded++
}

func (m *Metrics) IncrementRunsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsFailed++
}

func (m *Metrics) IncrementRunsSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsSkipped++
}

func (m *Metrics) RecordRunDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.RunCount++

	if m.RunCount > 0 {
		m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"trend_items_processed":    m.TrendItemsProcessed,
		"duplicates_filtered":      m.DuplicatesFiltered,
		"fallback_topics_injected": m.FallbackTopicsInjected,
		"step_calls_total":         m.StepCallsTotal,
		"step_retries":             m.StepRetries,
		"runs_succeeded":           m.RunsSucceeded,
		"runs_failed":              m.RunsFailed,
		"runs_skipped":             m.RunsSkipped,
		"last_run_duration_ms":     m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms":  m.AverageRunDuration.Milliseconds(),
		"last_run_time":            m.LastRunTime.Format(time.RFC3339),
		"last_error_time":          m.LastErrorTime.Format(time.RFC3339),
		"last_error":               m.LastError,
		"is_healthy":               m.IsHealthy,
	}
}
