// Package pipeline drives the daily episode generation sequence: topic
// selection, script writing with the quality gate, translation, TTS and
// publishing, every run wrapped in the idempotency ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trendcast/internal/config"
	"trendcast/internal/ledger"
	"trendcast/internal/logger"
	"trendcast/internal/metrics"
	"trendcast/internal/script"
	"trendcast/internal/storage"
	"trendcast/internal/trend"
)

// TrendRepository reads candidate topics for planning.
type TrendRepository interface {
	LoadRecentRepresentatives(ctx context.Context, lookbackHours, limit int) ([]trend.Candidate, error)
}

// EpisodeRepository persists generated episodes. Upsert-based so a racing
// double-run converges instead of corrupting state.
type EpisodeRepository interface {
	GetEpisode(ctx context.Context, id string) (*storage.Episode, error)
	UpsertEpisode(ctx context.Context, ep storage.Episode) error
}

type Orchestrator struct {
	cfg      *config.Config
	steps    StepInvoker
	trends   TrendRepository
	episodes EpisodeRepository
	ledger   *ledger.Ledger
}

func New(cfg *config.Config, steps StepInvoker, trends TrendRepository, episodes EpisodeRepository, led *ledger.Ledger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		steps:    steps,
		trends:   trends,
		episodes: episodes,
		ledger:   led,
	}
}

// runState is the per-invocation aggregate threaded between steps. It lives
// only for the duration of one Run and is persisted as the ledger payload.
type runState struct {
	episodeDate      string
	nativeEpisodeID  string
	foreignEpisodeID string
	topics           trend.TopicSet
	plan             string
	nativeScript     string
	foreignScript    string
	expandAttempts   int
	gate             script.Result
}

// Run executes one full pipeline invocation. All failures are converted to a
// ledger row plus an ok:false outcome; nothing escapes unrecorded.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	started := time.Now()

	date := req.EpisodeDate
	if date == "" {
		date = todayJST()
	}
	key := req.IdempotencyKey
	if key == "" {
		key = date
	}

	out := Outcome{
		RunID:          uuid.NewString(),
		EpisodeDate:    date,
		IdempotencyKey: key,
		Outputs:        map[string]string{},
	}

	startRes, err := o.ledger.StartRun(ctx, JobName, StepOrchestrate, key, "", "")
	if err != nil {
		// Ledger unavailability is fatal: skip logic downstream depends on it.
		out.Error = "ledger_unavailable"
		out.Details = err.Error()
		metrics.Global.IncrementRunsFailed()
		metrics.Global.SetError(err.Error())
		return out
	}
	if startRes.ShouldSkip {
		logger.Info("run already completed, skipping", "key", key, "status", string(startRes.Status))
		out.Ok = true
		out.Skipped = true
		metrics.Global.IncrementRunsSkipped()
		return out
	}

	if rc, ok := o.steps.(interface{ ResetBudget() }); ok {
		rc.ResetBudget()
	}

	st := &runState{episodeDate: date}
	runErr := o.execute(ctx, req, st, &out)

	payload := o.runPayload(st, &out, runErr)

	if runErr != nil {
		msg := runErr.Error()
		logger.Error("run failed", "key", key, "error", msg)
		if ferr := o.ledger.FailRun(ctx, JobName, StepOrchestrate, key, msg, payload, st.nativeEpisodeID); ferr != nil {
			logger.Error("ledger fail-write failed", "key", key, "error", ferr.Error())
			out.Details = ferr.Error()
		}
		out.Error = errorCode(runErr)
		if out.Details == "" {
			out.Details = errorDetail(runErr)
		}
		metrics.Global.IncrementRunsFailed()
		metrics.Global.SetError(msg)
		return out
	}

	if err := o.ledger.FinishRun(ctx, JobName, StepOrchestrate, key, ledger.StatusSucceeded, payload, st.nativeEpisodeID); err != nil {
		out.Error = "ledger_unavailable"
		out.Details = err.Error()
		metrics.Global.IncrementRunsFailed()
		metrics.Global.SetError(err.Error())
		return out
	}

	out.Ok = true
	metrics.Global.IncrementRunsSucceeded()
	metrics.Global.RecordRunDuration(time.Since(started))
	metrics.Global.SetLastRun()
	logger.Info("run succeeded", "key", key, "episode", st.nativeEpisodeID,
		"chars", st.gate.Metrics.Chars, "topics", len(st.topics.Topics))
	return out
}

func (o *Orchestrator) execute(ctx context.Context, req Request, st *runState, out *Outcome) error {
	if err := o.planTopics(ctx, st, out); err != nil {
		return err
	}
	if err := o.writeScript(ctx, st, out); err != nil {
		return err
	}
	if err := o.runQualityGate(ctx, st, out); err != nil {
		return err
	}
	if o.cfg.PolishEnabled {
		if err := o.polish(ctx, st, st.nativeEpisodeID, &st.nativeScript, o.cfg.NativeLanguage); err != nil {
			return err
		}
	}
	if err := o.saveEpisode(ctx, st.nativeEpisodeID, o.cfg.NativeLanguage, st.nativeScript, "", ""); err != nil {
		return err
	}

	skipTTS := o.cfg.SkipTTS || req.SkipTTS
	if !skipTTS {
		audioURL, err := o.synthesize(ctx, st.nativeEpisodeID, st.nativeScript, o.cfg.NativeLanguage)
		if err != nil {
			return err
		}
		out.Outputs["nativeAudioUrl"] = audioURL
		if err := o.saveEpisode(ctx, st.nativeEpisodeID, o.cfg.NativeLanguage, st.nativeScript, audioURL, ""); err != nil {
			return err
		}
	}

	if err := o.translate(ctx, st); err != nil {
		return err
	}
	if o.cfg.PolishEnabled {
		if err := o.polish(ctx, st, st.foreignEpisodeID, &st.foreignScript, o.cfg.ForeignLanguage); err != nil {
			return err
		}
	}
	if err := o.saveEpisode(ctx, st.foreignEpisodeID, o.cfg.ForeignLanguage, st.foreignScript, "", ""); err != nil {
		return err
	}

	if !skipTTS {
		audioURL, err := o.synthesize(ctx, st.foreignEpisodeID, st.foreignScript, o.cfg.ForeignLanguage)
		if err != nil {
			return err
		}
		out.Outputs["foreignAudioUrl"] = audioURL
		if err := o.saveEpisode(ctx, st.foreignEpisodeID, o.cfg.ForeignLanguage, st.foreignScript, audioURL, ""); err != nil {
			return err
		}
	}

	return o.publish(ctx, st, out)
}

// planTopics selects the day's topics locally, validates the composition, and
// asks the plan step for an episode outline.
func (o *Orchestrator) planTopics(ctx context.Context, st *runState, out *Outcome) error {
	raw, err := o.trends.LoadRecentRepresentatives(ctx,
		o.cfg.Selection.LookbackHours, o.cfg.Selection.CandidatePoolSize*2)
	if err != nil {
		return fmt.Errorf("load trend candidates: %w", err)
	}
	metrics.Global.AddTrendItemsProcessed(len(raw))

	digest := trend.Digest(raw, trend.DigestConfig{
		DenyKeywords:    o.cfg.DenyKeywords,
		AllowCategories: o.cfg.AllowCategories,
		MaxHardNews:     o.cfg.Selection.MaxHardTopics,
		MaxItems:        o.cfg.Selection.CandidatePoolSize,
	})
	clustered := trend.Cluster(digest.Items, o.cfg.Selection.CandidatePoolSize)
	st.topics = trend.Select(clustered, o.cfg.Selection)

	audit := st.topics.Audit
	if audit.HardCount > o.cfg.Selection.MaxHardTopics {
		return runErrorf(CodeTooManyHard, "%d hard topics selected, cap is %d",
			audit.HardCount, o.cfg.Selection.MaxHardTopics)
	}
	if audit.EntertainmentCount < o.cfg.Selection.MinEntertainment {
		return runErrorf(CodeInsufficientEnt, "%d entertainment topics selected, need %d",
			audit.EntertainmentCount, o.cfg.Selection.MinEntertainment)
	}

	out.TrendItems = len(st.topics.Topics)
	out.FallbackTopics = audit.FallbackCount
	metrics.Global.AddFallbackTopicsInjected(audit.FallbackCount)
	logger.Info("topics selected", "total", len(st.topics.Topics),
		"hard", audit.HardCount, "entertainment", audit.EntertainmentCount,
		"fallback", audit.FallbackCount)

	var resp planTopicsResponse
	reqBody := planTopicsRequest{EpisodeDate: st.episodeDate, Topics: topicPayloads(st.topics.Topics)}
	if err := o.steps.Invoke(ctx, StepPlanTopics, reqBody, &resp); err != nil {
		return stepFailed(StepPlanTopics, err)
	}
	if resp.Plan == "" {
		return runErrorf(CodeInvalidStepResponse, "%s returned an empty plan", StepPlanTopics)
	}
	st.plan = resp.Plan
	return nil
}

func (o *Orchestrator) writeScript(ctx context.Context, st *runState, out *Outcome) error {
	var resp writeScriptResponse
	reqBody := writeScriptRequest{
		EpisodeDate: st.episodeDate,
		Plan:        st.plan,
		Lang:        o.cfg.NativeLanguage,
		TargetChars: o.cfg.Gate.TargetChars,
	}
	if err := o.steps.Invoke(ctx, StepWriteScript, reqBody, &resp); err != nil {
		return stepFailed(StepWriteScript, err)
	}
	if resp.EpisodeID == "" || resp.Script == "" {
		return runErrorf(CodeInvalidStepResponse, "%s returned episodeId=%q with %d script chars",
			StepWriteScript, resp.EpisodeID, len(resp.Script))
	}

	st.nativeEpisodeID = resp.EpisodeID
	st.foreignEpisodeID = resp.EpisodeID + "-" + o.cfg.ForeignLanguage
	st.nativeScript = resp.Script
	out.Outputs["episodeId"] = resp.EpisodeID

	return o.saveEpisode(ctx, st.nativeEpisodeID, o.cfg.NativeLanguage, st.nativeScript, "", "")
}

// runQualityGate measures the script and drives up to MaxExpandAttempts
// expand calls while it stays under the minimum. Gate failures are terminal
// for the run, not retryable HTTP faults.
func (o *Orchestrator) runQualityGate(ctx context.Context, st *runState, out *Outcome) error {
	st.gate = script.Evaluate(st.nativeScript, o.cfg.Gate)

	for st.gate.TooShort && st.expandAttempts < o.cfg.Gate.MaxExpandAttempts {
		st.expandAttempts++
		logger.Info("script below minimum, expanding",
			"attempt", st.expandAttempts, "chars", st.gate.Metrics.Chars, "min", o.cfg.Gate.MinChars)

		var resp expandScriptResponse
		reqBody := expandScriptRequest{
			EpisodeID:   st.nativeEpisodeID,
			Script:      st.nativeScript,
			TargetChars: o.cfg.Gate.TargetChars,
		}
		if err := o.steps.Invoke(ctx, StepExpandScript, reqBody, &resp); err != nil {
			return stepFailed(StepExpandScript, err)
		}
		if resp.Script == "" {
			return runErrorf(CodeInvalidStepResponse, "%s returned an empty script", StepExpandScript)
		}
		st.nativeScript = resp.Script
		st.gate = script.Evaluate(st.nativeScript, o.cfg.Gate)
	}

	o.fillGateReport(st, out)

	switch {
	case st.gate.TooShort:
		return runErrorf(CodeScriptTooShort, "%d chars after %d expand attempts, minimum %d",
			st.gate.Metrics.Chars, st.expandAttempts, o.cfg.Gate.MinChars)
	case st.gate.TooLong:
		return runErrorf(CodeScriptTooLong, "%d chars, maximum %d", st.gate.Metrics.Chars, o.cfg.Gate.MaxChars)
	case st.gate.URLLeak:
		return &RunError{Code: CodeScriptContainsURL}
	case len(st.gate.Violations) > 0:
		return &RunError{Code: CodeScriptQuality + ":" + strings.Join(st.gate.Violations, ",")}
	}

	out.ScriptGate.Passed = true
	return nil
}

func (o *Orchestrator) fillGateReport(st *runState, out *Outcome) {
	out.ScriptMetrics = st.gate.Metrics
	out.ScriptGate = GateReport{
		ActualChars:    st.gate.Metrics.Chars,
		MinChars:       o.cfg.Gate.MinChars,
		MaxChars:       o.cfg.Gate.MaxChars,
		ExpandAttempts: st.expandAttempts,
		DuplicateRatio: st.gate.Metrics.DuplicateRatio,
	}
}

func (o *Orchestrator) polish(ctx context.Context, st *runState, episodeID string, text *string, lang string) error {
	var resp polishScriptResponse
	reqBody := polishScriptRequest{EpisodeID: episodeID, Script: *text, Lang: lang}
	if err := o.steps.Invoke(ctx, StepPolishScript, reqBody, &resp); err != nil {
		return stepFailed(StepPolishScript, err)
	}
	if resp.Script != "" {
		*text = resp.Script
	}
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, episodeID, text, lang string) (string, error) {
	var resp ttsResponse
	reqBody := ttsRequest{EpisodeID: episodeID, Script: text, Lang: lang}
	if err := o.steps.Invoke(ctx, StepTTS, reqBody, &resp); err != nil {
		return "", stepFailed(StepTTS, err)
	}
	if resp.AudioURL == "" {
		return "", runErrorf(CodeInvalidStepResponse, "%s returned no audio url", StepTTS)
	}
	return resp.AudioURL, nil
}

func (o *Orchestrator) translate(ctx context.Context, st *runState) error {
	var resp translateResponse
	reqBody := translateRequest{
		EpisodeID:  st.nativeEpisodeID,
		Script:     st.nativeScript,
		SourceLang: o.cfg.NativeLanguage,
		TargetLang: o.cfg.ForeignLanguage,
	}
	if err := o.steps.Invoke(ctx, StepTranslate, reqBody, &resp); err != nil {
		return stepFailed(StepTranslate, err)
	}
	if resp.Script == "" {
		return runErrorf(CodeInvalidStepResponse, "%s returned an empty script", StepTranslate)
	}
	st.foreignScript = resp.Script
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, st *runState, out *Outcome) error {
	var resp publishResponse
	reqBody := publishRequest{
		EpisodeDate: st.episodeDate,
		EpisodeIDs:  []string{st.nativeEpisodeID, st.foreignEpisodeID},
	}
	if err := o.steps.Invoke(ctx, StepPublish, reqBody, &resp); err != nil {
		return stepFailed(StepPublish, err)
	}

	publishedAt := resp.PublishedAt
	if publishedAt == "" {
		publishedAt = time.Now().UTC().Format(time.RFC3339)
	}
	out.Outputs["publishedAt"] = publishedAt

	if err := o.markPublished(ctx, st.nativeEpisodeID, publishedAt); err != nil {
		return err
	}
	return o.markPublished(ctx, st.foreignEpisodeID, publishedAt)
}

func (o *Orchestrator) saveEpisode(ctx context.Context, id, lang, text, audioURL, publishedAt string) error {
	if id == "" {
		return nil
	}
	existing, err := o.episodes.GetEpisode(ctx, id)
	if err != nil {
		return fmt.Errorf("load episode %s: %w", id, err)
	}

	ep := storage.Episode{
		ID:     id,
		Lang:   lang,
		Status: storage.EpisodeStatusDraft,
		Script: text,
	}
	if existing != nil {
		ep.Title = existing.Title
		ep.AudioURL = existing.AudioURL
		ep.PublishedAt = existing.PublishedAt
		ep.Status = existing.Status
	}
	if ep.Title == "" {
		ep.Title = episodeTitle(o.cfg.NativeLanguage, lang)
	}
	if audioURL != "" {
		ep.AudioURL = audioURL
	}
	if publishedAt != "" {
		ep.PublishedAt = publishedAt
		ep.Status = storage.EpisodeStatusPublished
	}

	if err := o.episodes.UpsertEpisode(ctx, ep); err != nil {
		return fmt.Errorf("save episode %s: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) markPublished(ctx context.Context, id, publishedAt string) error {
	existing, err := o.episodes.GetEpisode(ctx, id)
	if err != nil {
		return fmt.Errorf("load episode %s: %w", id, err)
	}
	if existing == nil {
		return fmt.Errorf("episode %s missing at publish time", id)
	}
	ep := *existing
	ep.Status = storage.EpisodeStatusPublished
	ep.PublishedAt = publishedAt
	if err := o.episodes.UpsertEpisode(ctx, ep); err != nil {
		return fmt.Errorf("publish episode %s: %w", id, err)
	}
	return nil
}

// runPayload serializes the run summary for the ledger row.
func (o *Orchestrator) runPayload(st *runState, out *Outcome, runErr error) string {
	summary := map[string]any{
		"runId":          out.RunID,
		"episodeDate":    st.episodeDate,
		"trendItems":     out.TrendItems,
		"fallbackTopics": out.FallbackTopics,
		"expandAttempts": st.expandAttempts,
		"scriptChars":    st.gate.Metrics.Chars,
		"duplicateRatio": st.gate.Metrics.DuplicateRatio,
	}
	if runErr != nil {
		summary["error"] = runErr.Error()
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func errorCode(err error) string {
	if re, ok := err.(*RunError); ok {
		return re.Code
	}
	return "internal_error"
}

func errorDetail(err error) string {
	if re, ok := err.(*RunError); ok {
		return re.Detail
	}
	return err.Error()
}

func episodeTitle(nativeLang, lang string) string {
	if lang == nativeLang {
		return "今日のトレンドキャスト"
	}
	return "Today's Trendcast"
}

func todayJST() string {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.Now().UTC().Format("2006-01-02")
	}
	return time.Now().In(loc).Format("2006-01-02")
}
