// Package server exposes the pipeline over HTTP: the daily-generate trigger,
// run inspection, health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trendcast/internal/ledger"
	"trendcast/internal/metrics"
	"trendcast/internal/pipeline"
)

// Runner triggers one pipeline invocation. Satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

// RunsReader lists ledger rows for inspection.
type RunsReader interface {
	List(ctx context.Context, job, keyPrefix string) ([]ledger.Record, error)
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(runner Runner, runs RunsReader) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/daily-generate", handleDailyGenerate(runner))
	r.GET("/runs", handleListRuns(runs))
	r.GET("/healthz", handleHealth)
	r.GET("/metrics", handleMetrics)
	return r
}

func handleDailyGenerate(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pipeline.Request
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request", "details": err.Error()})
				return
			}
		}

		outcome := runner.Run(c.Request.Context(), req)
		status := http.StatusOK
		if !outcome.Ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, outcome)
	}
}

func handleListRuns(runs RunsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		records, err := runs.List(c.Request.Context(), pipeline.JobName, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "ledger_unavailable", "details": err.Error()})
			return
		}

		type runView struct {
			JobName    string `json:"jobName"`
			StepName   string `json:"stepName"`
			Key        string `json:"idempotencyKey"`
			Status     string `json:"status"`
			EpisodeID  string `json:"episodeId,omitempty"`
			Error      string `json:"error,omitempty"`
			StartedAt  string `json:"startedAt"`
			FinishedAt string `json:"finishedAt,omitempty"`
		}
		views := make([]runView, 0, len(records))
		for _, rec := range records {
			v := runView{
				JobName:   rec.JobName,
				StepName:  rec.StepName,
				Key:       rec.Key,
				Status:    string(rec.Status),
				EpisodeID: rec.EpisodeID,
				Error:     rec.Error,
				StartedAt: rec.StartedAt.Format(time.RFC3339),
			}
			if !rec.FinishedAt.IsZero() {
				v.FinishedAt = rec.FinishedAt.Format(time.RFC3339)
			}
			views = append(views, v)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "runs": views})
	}
}

func handleHealth(c *gin.Context) {
	stats := metrics.Global.GetStats()

	status := http.StatusOK
	state := "ok"
	if healthy, ok := stats["is_healthy"].(bool); ok && !healthy {
		status = http.StatusServiceUnavailable
		state = "error"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Global.GetStats())
}
