package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trendcast/internal/logger"
	"trendcast/internal/metrics"
	"trendcast/internal/retry"
)

// StepInvoker calls one named step action and decodes its response into out.
type StepInvoker interface {
	Invoke(ctx context.Context, step string, payload any, out stepResponse) error
}

// StepClient invokes step actions over HTTP: POST <base>/<step> with a JSON
// body and a bearer credential. 5xx and 429 responses are retried with linear
// backoff; any other failure aborts immediately.
type StepClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	policy     retry.Policy
	budget     *callBudget
}

func NewStepClient(baseURL, token string, timeout time.Duration, attempts int, backoff time.Duration, maxCalls int) *StepClient {
	return &StepClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		policy: retry.Policy{
			MaxAttempts: attempts,
			Delay:       backoff,
			Linear:      true,
		},
		budget: newCallBudget(maxCalls),
	}
}

// ResetBudget clears the per-run call budget.
func (c *StepClient) ResetBudget() {
	c.budget.Reset()
}

func (c *StepClient) Invoke(ctx context.Context, step string, payload any, out stepResponse) error {
	attempt := 0
	return retry.WithRetry(ctx, c.policy, func() error {
		attempt++
		if attempt > 1 {
			metrics.Global.IncrementStepRetries()
		}
		if err := c.budget.Take(step); err != nil {
			return retry.Permanent(err)
		}
		return c.invokeOnce(ctx, step, payload, out)
	})
}

func (c *StepClient) invokeOnce(ctx context.Context, step string, payload any, out stepResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal %s request: %w", step, err))
	}

	url := c.baseURL + "/" + step
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create %s request: %w", step, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	metrics.Global.IncrementStepCalls()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are treated like 5xx: worth retrying.
		return fmt.Errorf("call %s: %w", step, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		logger.Warn("step action returned retryable status", "step", step, "status", resp.StatusCode)
		return fmt.Errorf("call %s: status %d", step, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("call %s: status %d: %s", step, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", step, err))
	}
	if !out.statusOK() {
		msg := out.statusError()
		if msg == "" {
			msg = "step reported ok=false"
		}
		return retry.Permanent(fmt.Errorf("call %s: %s", step, msg))
	}
	return nil
}
