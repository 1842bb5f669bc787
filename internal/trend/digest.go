package trend

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

// DigestConfig controls the digest filter.
type DigestConfig struct {
	DenyKeywords    []string
	AllowCategories []Category
	MaxHardNews     int
	MaxItems        int
}

// DigestResult carries the surviving candidates plus how many were filtered
// out. Items skipped by the hard-news cap still count as filtered, they are
// not silently dropped.
type DigestResult struct {
	Items         []Candidate
	FilteredCount int
}

var (
	reTags     = regexp.MustCompile(`<[^>]*>`)
	reURLs     = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+)`)
	reEntities = regexp.MustCompile(`&#?\w+;?`)
)

// leakedTokens are fragments of upstream templating that occasionally survive
// into feed text. They carry no meaning and get stripped outright.
var leakedTokens = []string{"<a", "</a", "http", "&#", "undefined"}

// CleanText strips HTML, entities, URLs and leaked template tokens from feed
// text and collapses whitespace. Deterministic and never fails.
func CleanText(s string) string {
	s = reTags.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = reURLs.ReplaceAllString(s, " ")
	s = reEntities.ReplaceAllString(s, " ")
	for _, tok := range leakedTokens {
		s = strings.ReplaceAll(s, tok, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Digest cleans, filters, deduplicates and orders raw candidates, then applies
// the composition constraints (entertainment anchor, hard-news cap). Invalid
// items are filtered, never errored.
func Digest(items []Candidate, cfg DigestConfig) DigestResult {
	allow := map[Category]struct{}{}
	for _, c := range cfg.AllowCategories {
		allow[c] = struct{}{}
	}

	deny := make([]string, 0, len(cfg.DenyKeywords))
	for _, k := range cfg.DenyKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			deny = append(deny, k)
		}
	}

	seen := map[string]struct{}{}
	var kept []Candidate
	filtered := 0

	for _, item := range items {
		item.Title = CleanText(item.Title)
		item.Summary = CleanText(item.Summary)

		if item.Title == "" {
			filtered++
			continue
		}
		if len(allow) > 0 {
			if _, ok := allow[item.Category]; !ok {
				filtered++
				continue
			}
		}
		if matchesAny(strings.ToLower(item.Title+" "+item.Summary), deny) {
			filtered++
			continue
		}

		key := DedupKey(item.Title, item.URL)
		if _, dup := seen[key]; dup {
			filtered++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, item)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return lessCandidates(kept[i], kept[j])
	})

	selected, skipped := applyComposition(kept, cfg)
	return DigestResult{Items: selected, FilteredCount: filtered + skipped}
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// applyComposition reserves the best entertainment item first so the episode
// always has a fun anchor topic, then fills remaining slots in order, skipping
// hard news past the cap.
func applyComposition(ordered []Candidate, cfg DigestConfig) ([]Candidate, int) {
	maxItems := cfg.MaxItems
	if maxItems <= 0 || maxItems > len(ordered) {
		maxItems = len(ordered)
	}

	taken := make([]Candidate, 0, maxItems)
	used := map[string]struct{}{}
	hardCount := 0
	skipped := 0

	for _, item := range ordered {
		if IsEntertainment(item.Category) {
			taken = append(taken, item)
			used[DedupKey(item.Title, item.URL)] = struct{}{}
			break
		}
	}

	for _, item := range ordered {
		if len(taken) >= maxItems {
			break
		}
		key := DedupKey(item.Title, item.URL)
		if _, ok := used[key]; ok {
			continue
		}
		if IsHard(item.Category) && cfg.MaxHardNews > 0 && hardCount >= cfg.MaxHardNews {
			skipped++
			continue
		}
		if IsHard(item.Category) {
			hardCount++
		}
		used[key] = struct{}{}
		taken = append(taken, item)
	}

	return taken, skipped
}
