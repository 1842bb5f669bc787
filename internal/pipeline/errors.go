package pipeline

import "fmt"

// Error codes surfaced to callers and written to the ledger. Validation codes
// abort the current run but leave the key retryable; step_failed covers
// exhausted or non-retryable step calls.
const (
	CodeScriptTooShort      = "script_too_short"
	CodeScriptTooLong       = "script_too_long"
	CodeScriptContainsURL   = "script_contains_url"
	CodeScriptQuality       = "script_quality_failed"
	CodeInsufficientEnt     = "insufficient_entertainment_topics"
	CodeTooManyHard         = "too_many_hard_topics"
	CodeStepFailed          = "step_failed"
	CodeInvalidStepResponse = "invalid_step_response"
)

// RunError is a typed pipeline failure: a stable code plus free-form detail.
type RunError struct {
	Code   string
	Detail string
}

func (e *RunError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func runErrorf(code, format string, args ...any) *RunError {
	return &RunError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func stepFailed(step string, err error) *RunError {
	return &RunError{Code: CodeStepFailed + ":" + step, Detail: err.Error()}
}
