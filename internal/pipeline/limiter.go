package pipeline

import (
	"fmt"
	"sync"
)

// callBudget caps how many outbound step calls one process may make before
// the daily quota window resets. It protects the LLM/TTS backends from a
// retry storm the same way the upstream services cap their own usage.
type callBudget struct {
	mu    sync.Mutex
	used  int
	limit int
}

func newCallBudget(limit int) *callBudget {
	return &callBudget{limit: limit}
}

// Take consumes one call from the budget or reports exhaustion.
func (b *callBudget) Take(step string) error {
	if b == nil || b.limit <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return fmt.Errorf("step call budget exhausted (%d/%d) before %s", b.used, b.limit, step)
	}
	b.used++
	return nil
}

// Reset returns the budget to empty, called at the start of each run.
func (b *callBudget) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
}
