package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Episode statuses.
const (
	EpisodeStatusDraft     = "draft"
	EpisodeStatusPublished = "published"
)

type Episode struct {
	ID          string
	Lang        string
	Status      string
	Title       string
	Script      string
	AudioURL    string
	PublishedAt string
}

// GetEpisode returns (nil, nil) when the episode does not exist.
func (s *Store) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lang, status, title, script, audio_url, published_at
		FROM episodes WHERE id = ?`, id)

	var ep Episode
	err := row.Scan(&ep.ID, &ep.Lang, &ep.Status, &ep.Title, &ep.Script, &ep.AudioURL, &ep.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return &ep, nil
}

// UpsertEpisode inserts or fully overwrites an episode row. Upsert semantics
// keep a double-run convergent instead of corrupting state.
func (s *Store) UpsertEpisode(ctx context.Context, ep Episode) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, lang, status, title, script, audio_url, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lang = excluded.lang,
			status = excluded.status,
			title = excluded.title,
			script = excluded.script,
			audio_url = excluded.audio_url,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`,
		ep.ID, ep.Lang, ep.Status, ep.Title, ep.Script, ep.AudioURL, ep.PublishedAt, now, now)
	if err != nil {
		return fmt.Errorf("upsert episode %s: %w", ep.ID, err)
	}
	return nil
}
