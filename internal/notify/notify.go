// Package notify announces published episodes to a Telegram channel. Fully
// optional: without a token it is a no-op.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trendcast/internal/logger"
	"trendcast/internal/retry"
)

type Notifier struct {
	token      string
	chatID     string
	httpClient *http.Client
}

func New(token, chatID string) *Notifier {
	return &Notifier{
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.token != "" && n.chatID != ""
}

// AnnounceEpisode posts a short publication notice. Failures are logged, not
// fatal: the episode is already published.
func (n *Notifier) AnnounceEpisode(ctx context.Context, episodeDate, episodeID, audioURL string) {
	if !n.Enabled() {
		return
	}

	text := fmt.Sprintf("🎙 <b>トレンドキャスト %s</b> を配信しました\nエピソード: %s", episodeDate, episodeID)
	if audioURL != "" {
		text += "\n" + audioURL
	}

	err := retry.WithRetry(ctx, retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second, Linear: true}, func() error {
		return n.sendMessage(ctx, text)
	})
	if err != nil {
		logger.Warn("episode announcement failed", "episode", episodeID, "error", err.Error())
		return
	}
	logger.Info("episode announced", "episode", episodeID)
}

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)

	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}
	return nil
}
