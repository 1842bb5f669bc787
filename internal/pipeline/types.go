package pipeline

import (
	"trendcast/internal/script"
	"trendcast/internal/trend"
)

// Ledger identity of the top-level run.
const (
	JobName         = "daily-generate"
	StepOrchestrate = "orchestrate"
)

// Step action names, invoked in this order (expand and polish are
// conditional).
const (
	StepPlanTopics   = "plan-topics"
	StepWriteScript  = "write-script"
	StepExpandScript = "expand-script"
	StepPolishScript = "polish-script"
	StepTTS          = "tts"
	StepTranslate    = "translate-script"
	StepPublish      = "publish"
)

// Request is the caller-facing trigger for one run.
type Request struct {
	EpisodeDate    string `json:"episodeDate,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	SkipTTS        bool   `json:"skipTts,omitempty"`
}

// GateReport summarizes the quality-gate outcome for the response payload.
type GateReport struct {
	ActualChars    int     `json:"actualChars"`
	MinChars       int     `json:"minChars"`
	MaxChars       int     `json:"maxChars"`
	ExpandAttempts int     `json:"expandAttempts"`
	DuplicateRatio float64 `json:"duplicateRatio"`
	Passed         bool    `json:"passed"`
}

// Outcome is the aggregate result of one orchestrator invocation.
type Outcome struct {
	Ok             bool              `json:"ok"`
	Skipped        bool              `json:"skipped,omitempty"`
	RunID          string            `json:"runId"`
	EpisodeDate    string            `json:"episodeDate"`
	IdempotencyKey string            `json:"idempotencyKey"`
	TrendItems     int               `json:"trendItems"`
	FallbackTopics int               `json:"fallbackTopics"`
	ScriptMetrics  script.Metrics    `json:"scriptMetrics"`
	ScriptGate     GateReport        `json:"scriptGate"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	Details        string            `json:"details,omitempty"`
}

// TopicPayload is the wire form of a selected topic sent to step actions.
type TopicPayload struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary,omitempty"`
	Source   string  `json:"source,omitempty"`
	Category string  `json:"category"`
	URL      string  `json:"url,omitempty"`
	Score    float64 `json:"score"`
	Fallback bool    `json:"fallback,omitempty"`
}

func topicPayloads(topics []trend.Candidate) []TopicPayload {
	out := make([]TopicPayload, 0, len(topics))
	for _, t := range topics {
		out = append(out, TopicPayload{
			ID:       t.ID,
			Title:    t.Title,
			Summary:  t.Summary,
			Source:   t.Source,
			Category: string(t.Category),
			URL:      t.URL,
			Score:    t.Score,
			Fallback: t.Fallback,
		})
	}
	return out
}

// envelope is the shared response shape of every step action. Non-2xx status
// or ok:false both count as step failure.
type envelope struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (e *envelope) statusOK() bool      { return e.Ok }
func (e *envelope) statusError() string { return e.Error }

type stepResponse interface {
	statusOK() bool
	statusError() string
}

type planTopicsRequest struct {
	EpisodeDate string         `json:"episodeDate"`
	Topics      []TopicPayload `json:"topics"`
}

type planTopicsResponse struct {
	envelope
	Plan string `json:"plan"`
}

type writeScriptRequest struct {
	EpisodeDate string `json:"episodeDate"`
	Plan        string `json:"plan"`
	Lang        string `json:"lang"`
	TargetChars int    `json:"targetChars"`
}

type writeScriptResponse struct {
	envelope
	EpisodeID string `json:"episodeId"`
	Script    string `json:"script"`
}

type expandScriptRequest struct {
	EpisodeID   string `json:"episodeId"`
	Script      string `json:"script"`
	TargetChars int    `json:"targetChars"`
}

type expandScriptResponse struct {
	envelope
	Script string `json:"script"`
}

type polishScriptRequest struct {
	EpisodeID string `json:"episodeId"`
	Script    string `json:"script"`
	Lang      string `json:"lang"`
}

type polishScriptResponse struct {
	envelope
	Script string `json:"script"`
}

type ttsRequest struct {
	EpisodeID string `json:"episodeId"`
	Script    string `json:"script"`
	Lang      string `json:"lang"`
}

type ttsResponse struct {
	envelope
	AudioURL string `json:"audioUrl"`
}

type translateRequest struct {
	EpisodeID  string `json:"episodeId"`
	Script     string `json:"script"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

type translateResponse struct {
	envelope
	Script string `json:"script"`
}

type publishRequest struct {
	EpisodeDate string   `json:"episodeDate"`
	EpisodeIDs  []string `json:"episodeIds"`
}

type publishResponse struct {
	envelope
	PublishedAt string `json:"publishedAt"`
}
