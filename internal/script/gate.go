// Package script measures generated podcast scripts for the quality gate:
// length, near-duplicate lines, and leaked URLs.
package script

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GateConfig bounds an acceptable script. Resolved once per run.
type GateConfig struct {
	MinChars          int
	TargetChars       int
	MaxChars          int
	MaxDuplicateRatio float64
	DuplicateWindow   int
	CharsPerMinute    int
	MaxExpandAttempts int
	SourcesHeading    string
}

func (c GateConfig) Validate() error {
	if c.MinChars > c.MaxChars {
		return fmt.Errorf("script min chars (%d) exceeds max chars (%d)", c.MinChars, c.MaxChars)
	}
	return nil
}

// Metrics are the measured properties of one script attempt.
type Metrics struct {
	Chars            int     `json:"chars"`
	Lines            int     `json:"lines"`
	DuplicateRatio   float64 `json:"duplicateRatio"`
	EstimatedMinutes float64 `json:"estimatedMinutes"`
}

// Result is one gate evaluation. TooShort is the only recoverable condition
// (via bounded expand retries); everything else is terminal for the run.
type Result struct {
	Metrics    Metrics
	TooShort   bool
	TooLong    bool
	URLLeak    bool
	Violations []string
}

var reScriptURL = regexp.MustCompile(`(?i)(https?://|www\.)`)

// Evaluate measures the script against the gate. Character counts are runes,
// not bytes: the scripts are Japanese.
func Evaluate(text string, cfg GateConfig) Result {
	body := stripSourcesSection(text, cfg.SourcesHeading)

	m := Metrics{
		Chars: utf8.RuneCountInString(strings.TrimSpace(text)),
	}

	lines := nonEmptyLines(text)
	m.Lines = len(lines)
	m.DuplicateRatio = duplicateRatio(lines, cfg.DuplicateWindow)

	if cfg.CharsPerMinute > 0 {
		m.EstimatedMinutes = float64(m.Chars) / float64(cfg.CharsPerMinute)
	}

	res := Result{Metrics: m}
	if m.Chars < cfg.MinChars {
		res.TooShort = true
	}
	if cfg.MaxChars > 0 && m.Chars > cfg.MaxChars {
		res.TooLong = true
	}
	if reScriptURL.MatchString(body) {
		res.URLLeak = true
	}
	if cfg.MaxDuplicateRatio > 0 && m.DuplicateRatio > cfg.MaxDuplicateRatio {
		res.Violations = append(res.Violations,
			"duplicate_ratio_exceeded")
	}
	return res
}

// stripSourcesSection drops the designated sources section (heading line up to
// the next heading or EOF) so listed reference links do not count as leaks.
func stripSourcesSection(text, heading string) string {
	if heading == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	var kept []string
	inSources := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, heading) {
			inSources = true
			continue
		}
		if inSources && isHeading(trimmed) {
			inSources = false
		}
		if !inSources {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "■") || strings.HasPrefix(line, "【")
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// duplicateRatio counts lines whose normalized text matches any of the
// previous window kept lines, over all non-empty lines.
func duplicateRatio(lines []string, window int) float64 {
	if len(lines) == 0 {
		return 0
	}
	if window <= 0 {
		window = 10
	}

	var kept []string
	dups := 0
	for _, line := range lines {
		norm := normalizeLine(line)
		if norm == "" {
			continue
		}
		start := len(kept) - window
		if start < 0 {
			start = 0
		}
		isDup := false
		for _, prev := range kept[start:] {
			if prev == norm {
				isDup = true
				break
			}
		}
		if isDup {
			dups++
			continue
		}
		kept = append(kept, norm)
	}
	return float64(dups) / float64(len(lines))
}

// normalizeLine lower-cases and drops punctuation and whitespace so trivially
// reworded repeats still match.
func normalizeLine(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
