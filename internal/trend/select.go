package trend

import (
	"fmt"
	"sort"
)

// SelectionConfig is resolved once per run and passed by value everywhere.
type SelectionConfig struct {
	TargetTotal           int
	TargetDeepDive        int
	TargetQuickNews       int
	MaxHardTopics         int
	MinEntertainment      int
	SourceDiversityWindow int
	LookbackHours         int
	CandidatePoolSize     int
	CategoryCaps          map[Category]int
}

func (c SelectionConfig) Validate() error {
	if c.TargetTotal <= 0 {
		return fmt.Errorf("target total must be positive, got %d", c.TargetTotal)
	}
	if c.TargetDeepDive+c.TargetQuickNews > c.TargetTotal {
		return fmt.Errorf("deep dive (%d) + quick news (%d) exceeds target total (%d)",
			c.TargetDeepDive, c.TargetQuickNews, c.TargetTotal)
	}
	return nil
}

// Audit records the distribution of a finished selection for validation and
// after-the-fact inspection.
type Audit struct {
	ByCategory         map[Category]int
	ByDomain           map[string]int
	HardCount          int
	EntertainmentCount int
	FallbackCount      int
}

// TopicSet is the ordered selection result. Immutable once built.
type TopicSet struct {
	Topics []Candidate
	Audit  Audit
}

// requiredCategories always get one slot each when live candidates exist.
var requiredCategories = []Category{CategoryEntertainment, CategoryGame, CategoryMovie}

type selector struct {
	cfg       SelectionConfig
	selected  []Candidate
	usedKeys  map[string]struct{}
	catCount  map[Category]int
	hardCount int
	entCount  int
}

func (s *selector) full() bool {
	return len(s.selected) >= s.cfg.TargetTotal
}

func (s *selector) domainBlocked(c Candidate) bool {
	window := s.cfg.SourceDiversityWindow
	if window <= 0 {
		return false
	}
	domain := hostKey(c.URL, c.Source)
	start := len(s.selected) - window
	if start < 0 {
		start = 0
	}
	for _, prev := range s.selected[start:] {
		if hostKey(prev.URL, prev.Source) == domain {
			return true
		}
	}
	return false
}

// canTake checks every constraint on adding c. The hard-topic cap is never
// relaxed; diversity and per-category caps can be.
func (s *selector) canTake(c Candidate, relaxDiversity, relaxCaps bool) bool {
	if s.full() {
		return false
	}
	if _, dup := s.usedKeys[DedupKey(c.Title, c.URL)]; dup {
		return false
	}
	if IsHard(c.Category) && s.hardCount >= s.cfg.MaxHardTopics {
		return false
	}
	if !relaxCaps {
		if limit, ok := s.cfg.CategoryCaps[c.Category]; ok && s.catCount[c.Category] >= limit {
			return false
		}
	}
	if !relaxDiversity && s.domainBlocked(c) {
		return false
	}
	return true
}

func (s *selector) take(c Candidate) {
	s.selected = append(s.selected, c)
	s.usedKeys[DedupKey(c.Title, c.URL)] = struct{}{}
	s.catCount[c.Category]++
	if IsHard(c.Category) {
		s.hardCount++
	}
	if IsEntertainment(c.Category) {
		s.entCount++
	}
}

// Select turns a digest-filtered, clustered candidate pool into the final
// ordered topic set. Pure function of its inputs: identical pool and config
// always produce the identical result.
func Select(pool []Candidate, cfg SelectionConfig) TopicSet {
	ordered := make([]Candidate, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		return lessCandidates(ordered[i], ordered[j])
	})
	if cfg.CandidatePoolSize > 0 && len(ordered) > cfg.CandidatePoolSize {
		ordered = ordered[:cfg.CandidatePoolSize]
	}

	s := &selector{
		cfg:      cfg,
		usedKeys: map[string]struct{}{},
		catCount: map[Category]int{},
	}

	// Pass 1: one slot per required category, retrying without the
	// source-diversity constraint when it cannot be met.
	for _, rc := range requiredCategories {
		if s.catCount[rc] > 0 {
			continue
		}
		if !s.pickCategory(ordered, rc, false) {
			s.pickCategory(ordered, rc, true)
		}
	}

	// Pass 2+3 strict, then relaxed: first without diversity, then also
	// without category caps. The hard cap survives every relaxation.
	s.fillEntertainment(ordered, false, false)
	s.fillGeneral(ordered, false, false)
	s.fillEntertainment(ordered, true, false)
	s.fillGeneral(ordered, true, false)
	s.fillEntertainment(ordered, true, true)
	s.fillGeneral(ordered, true, true)

	fallbacks := s.injectFallbacks()

	return TopicSet{
		Topics: s.selected,
		Audit:  s.audit(fallbacks),
	}
}

func (s *selector) pickCategory(ordered []Candidate, cat Category, relaxDiversity bool) bool {
	for _, c := range ordered {
		if c.Category != cat {
			continue
		}
		if s.canTake(c, relaxDiversity, false) {
			s.take(c)
			return true
		}
	}
	return false
}

func (s *selector) fillEntertainment(ordered []Candidate, relaxDiversity, relaxCaps bool) {
	for _, c := range ordered {
		if s.entCount >= s.cfg.MinEntertainment || s.full() {
			return
		}
		if !IsEntertainment(c.Category) {
			continue
		}
		if s.canTake(c, relaxDiversity, relaxCaps) {
			s.take(c)
		}
	}
}

func (s *selector) fillGeneral(ordered []Candidate, relaxDiversity, relaxCaps bool) {
	for _, c := range ordered {
		if s.full() {
			return
		}
		if s.canTake(c, relaxDiversity, relaxCaps) {
			s.take(c)
		}
	}
}

// injectFallbacks pads the selection to the target total from the editorial
// list, cycling in list order. Instances get unique suffixed ids, and repeat
// cycles get numbered titles so the dedup invariant holds. Fallbacks that
// would break the hard cap are skipped.
func (s *selector) injectFallbacks() int {
	injected := 0
	n := 0
	for !s.full() {
		progress := false
		for _, base := range fallbackTopics {
			if s.full() {
				break
			}
			n++
			item := fallbackInstance(base, n)
			if cycle := (n - 1) / len(fallbackTopics); cycle > 0 {
				item.Title = fmt.Sprintf("%s その%d", base.Title, cycle+1)
			}
			if IsHard(item.Category) && s.hardCount >= s.cfg.MaxHardTopics {
				continue
			}
			if _, dup := s.usedKeys[DedupKey(item.Title, item.URL)]; dup {
				continue
			}
			s.take(item)
			injected++
			progress = true
		}
		if !progress {
			break
		}
	}
	return injected
}

func (s *selector) audit(fallbacks int) Audit {
	byCategory := map[Category]int{}
	byDomain := map[string]int{}
	for _, c := range s.selected {
		byCategory[c.Category]++
		byDomain[hostKey(c.URL, c.Source)]++
	}
	return Audit{
		ByCategory:         byCategory,
		ByDomain:           byDomain,
		HardCount:          s.hardCount,
		EntertainmentCount: s.entCount,
		FallbackCount:      fallbacks,
	}
}
