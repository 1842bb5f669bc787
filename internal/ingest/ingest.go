// Package ingest fetches the configured RSS sources and fills the trend-item
// store the planning pipeline reads from: items are scored from source weight
// and recency, clustered, and the cluster representatives marked.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"trendcast/internal/logger"
	"trendcast/internal/metrics"
	"trendcast/internal/trend"
)

// Store is the narrow write side of the trend-item store.
type Store interface {
	UpsertTrendItem(ctx context.Context, item trend.Candidate, representative bool) error
}

type Ingestor struct {
	parser   *gofeed.Parser
	store    Store
	lookback time.Duration
	now      func() time.Time
}

func New(store Store, lookbackHours int) *Ingestor {
	return &Ingestor{
		parser:   gofeed.NewParser(),
		store:    store,
		lookback: time.Duration(lookbackHours) * time.Hour,
		now:      time.Now,
	}
}

// Run fetches every source, keeps fresh items, clusters them and upserts the
// result. Individual feed failures are logged and skipped, not fatal.
func (in *Ingestor) Run(ctx context.Context, sources []Source) (int, error) {
	var all []trend.Candidate
	successCount := 0

	for _, src := range sources {
		feed, err := in.parser.ParseURLWithContext(src.URL, ctx)
		if err != nil {
			logger.Warn("feed fetch failed", "source", src.Name, "url", src.URL, "error", err.Error())
			continue
		}
		successCount++

		for _, item := range feed.Items {
			cand, ok := in.buildCandidate(src, item)
			if !ok {
				continue
			}
			all = append(all, cand)
		}
		logger.Info("feed loaded", "source", src.Name, "items", len(feed.Items))
	}
	logger.Info("feeds processed", "ok", successCount, "total", len(sources), "candidates", len(all))
	metrics.Global.AddTrendItemsProcessed(len(all))

	reps := trend.Cluster(all, 0)
	repByID := map[string]trend.Candidate{}
	for _, rep := range reps {
		repByID[rep.ID] = rep
	}

	stored := 0
	for _, cand := range all {
		if rep, ok := repByID[cand.ID]; ok {
			cand.ClusterSize = rep.ClusterSize
			if err := in.store.UpsertTrendItem(ctx, cand, true); err != nil {
				return stored, err
			}
		} else {
			if err := in.store.UpsertTrendItem(ctx, cand, false); err != nil {
				return stored, err
			}
		}
		stored++
	}
	return stored, nil
}

// buildCandidate converts one feed item. Items without a title or outside the
// lookback window are dropped.
func (in *Ingestor) buildCandidate(src Source, item *gofeed.Item) (trend.Candidate, bool) {
	title := trend.CleanText(item.Title)
	if title == "" {
		return trend.Candidate{}, false
	}

	published := in.now().UTC()
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	}
	if in.lookback > 0 && in.now().Sub(published) > in.lookback {
		return trend.Candidate{}, false
	}

	category := src.Category
	if len(item.Categories) > 0 && strings.TrimSpace(item.Categories[0]) != "" {
		category = item.Categories[0]
	}

	cand := trend.Candidate{
		Title:       title,
		URL:         item.Link,
		Summary:     extractSummary(item.Description),
		Source:      src.Name,
		Category:    trend.NormalizeCategory(category),
		Score:       scoreItem(src.Weight, in.now().UTC(), published),
		PublishedAt: published.Format(time.RFC3339),
		ClusterSize: 1,
	}
	cand.ID = trend.DedupKey(cand.Title, cand.URL)
	return cand, true
}

// extractSummary pulls readable text out of feed description HTML.
func extractSummary(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return trend.CleanText(desc)
	}
	return trend.CleanText(doc.Text())
}

// scoreItem combines the source weight with a recency bonus that decays to
// zero over 24 hours. Fresh items from trusted sources surface first.
func scoreItem(weight float64, now, published time.Time) float64 {
	base := weight * 10

	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	recency := 1 - age.Hours()/24
	if recency < 0 {
		recency = 0
	}
	return base + recency*5
}
