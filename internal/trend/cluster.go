package trend

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// jaccardThreshold is the title similarity above which two stories from
// different hosts are treated as the same story.
const jaccardThreshold = 0.6

// hostKey groups candidates by publishing domain: lower-cased hostname with a
// leading www. stripped. Unparseable URLs fall back to the raw source string.
func hostKey(rawURL, source string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(source))
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// titleTokens tokenizes a title into a normalized token set: NFKC fold,
// lower-case, non letter/digit runes become separators.
func titleTokens(title string) map[string]struct{} {
	s := norm.NFKC.String(title)
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := map[string]struct{}{}
	for _, w := range strings.Fields(b.String()) {
		tokens[w] = struct{}{}
	}
	return tokens
}

// jaccard is defined as 0 when either set is empty so that all-punctuation
// titles never merge into an existing cluster.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type cluster struct {
	rep    Candidate
	tokens map[string]struct{}
	size   int
}

// Cluster merges near-duplicate stories and returns one representative per
// cluster, capped at maxOut, ordered by score then recency.
//
// Two levels: per-host dedup keeps the best-scored item per domain, then
// cross-host merging joins titles whose Jaccard similarity reaches the
// threshold. A candidate merges into the first matching cluster.
func Cluster(items []Candidate, maxOut int) []Candidate {
	byHost := map[string]Candidate{}
	hostOrder := []string{}
	for _, item := range items {
		key := hostKey(item.URL, item.Source)
		cur, ok := byHost[key]
		if !ok {
			byHost[key] = item
			hostOrder = append(hostOrder, key)
			continue
		}
		if item.Score > cur.Score || (item.Score == cur.Score && item.PublishedAt > cur.PublishedAt) {
			byHost[key] = item
		}
	}

	reps := make([]Candidate, 0, len(hostOrder))
	for _, key := range hostOrder {
		reps = append(reps, byHost[key])
	}
	sort.SliceStable(reps, func(i, j int) bool {
		return lessCandidates(reps[i], reps[j])
	})

	var clusters []*cluster
	for _, item := range reps {
		tokens := titleTokens(item.Title)

		merged := false
		for _, cl := range clusters {
			if jaccard(tokens, cl.tokens) >= jaccardThreshold {
				cl.size++
				if item.Score > cl.rep.Score || (item.Score == cl.rep.Score && item.PublishedAt > cl.rep.PublishedAt) {
					cl.rep = item
					cl.tokens = tokens
				}
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, &cluster{rep: item, tokens: tokens, size: 1})
		}
	}

	out := make([]Candidate, 0, len(clusters))
	for _, cl := range clusters {
		rep := cl.rep
		if cl.size > rep.ClusterSize {
			rep.ClusterSize = cl.size
		}
		out = append(out, rep)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PublishedAt > out[j].PublishedAt
	})

	if maxOut > 0 && len(out) > maxOut {
		out = out[:maxOut]
	}
	return out
}
