package storage

import (
	"context"
	"fmt"
	"time"

	"trendcast/internal/trend"
)

// UpsertTrendItem writes one ingested candidate, overwriting a prior row with
// the same id so repeated ingestion converges.
func (s *Store) UpsertTrendItem(ctx context.Context, item trend.Candidate, representative bool) error {
	rep := 0
	if representative {
		rep = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_items
			(id, title, url, summary, source, category, score, published_at, cluster_size, representative, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			summary = excluded.summary,
			source = excluded.source,
			category = excluded.category,
			score = excluded.score,
			published_at = excluded.published_at,
			cluster_size = excluded.cluster_size,
			representative = excluded.representative`,
		item.ID, item.Title, item.URL, item.Summary, item.Source,
		string(item.Category), item.Score, item.PublishedAt, item.ClusterSize, rep,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert trend item %s: %w", item.ID, err)
	}
	return nil
}

// LoadRecentRepresentatives returns cluster representatives published within
// the lookback window, best score first.
func (s *Store) LoadRecentRepresentatives(ctx context.Context, lookbackHours, limit int) ([]trend.Candidate, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour).Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, url, summary, source, category, score, published_at, cluster_size
		FROM trend_items
		WHERE representative = 1 AND published_at >= ?
		ORDER BY score DESC, published_at DESC
		LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query trend items: %w", err)
	}
	defer rows.Close()

	var items []trend.Candidate
	for rows.Next() {
		var item trend.Candidate
		var category string
		if err := rows.Scan(&item.ID, &item.Title, &item.URL, &item.Summary,
			&item.Source, &category, &item.Score, &item.PublishedAt, &item.ClusterSize); err != nil {
			return nil, fmt.Errorf("scan trend item: %w", err)
		}
		item.Category = trend.Category(category)
		items = append(items, item)
	}
	return items, rows.Err()
}
