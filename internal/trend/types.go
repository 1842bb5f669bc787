package trend

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Candidate is one trend item competing for a slot in the daily episode.
// PublishedAt stays an RFC3339 string: the format is fixed-width, so plain
// string comparison orders correctly and survives round-trips through storage.
type Candidate struct {
	ID          string
	Title       string
	URL         string
	Summary     string
	Source      string
	Category    Category
	Score       float64
	PublishedAt string
	ClusterSize int
	Fallback    bool
}

// DedupKey hashes the normalized (title, url) pair. Two candidates with the
// same key are the same story.
func DedupKey(title, url string) string {
	h := sha1.New()
	h.Write([]byte(normalizeKeyPart(title) + "::" + normalizeKeyPart(url)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// lessCandidates is the shared ordering for digests and selection pools:
// score desc, cluster size desc, recency desc.
func lessCandidates(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.ClusterSize != b.ClusterSize {
		return a.ClusterSize > b.ClusterSize
	}
	return a.PublishedAt > b.PublishedAt
}
