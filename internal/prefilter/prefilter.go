// Package prefilter applies cheap deterministic rejection rules before any
// embedding or model call is spent on an item.
package prefilter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"newsdigest/internal/config"
	"newsdigest/internal/store"
)

// Rejection reasons reported in Decision.Reason.
const (
	ReasonEmptyTitle = "empty_title"
	ReasonTooShort   = "too_short"
	ReasonNoise      = "noise_pattern"
	ReasonLowSignal  = "low_signal"
	ReasonNoKeyword  = "no_keyword"
)

// Decision is the outcome of checking one item.
type Decision struct {
	Pass   bool
	Reason string
	Detail string
}

type noiseRule struct {
	raw    string
	folded string
	re     *regexp.Regexp
}

// Filter holds compiled prefilter rules. It is safe for concurrent use.
type Filter struct {
	minTextChars    int
	minSignal       int
	noise           []noiseRule
	keywords        []string
	requireKeywords bool
}

// New compiles the rules in cfg. Noise patterns prefixed with "re:" are
// case-insensitive regular expressions; others are case-folded substrings.
func New(cfg config.Prefilter) (*Filter, error) {
	f := &Filter{
		minTextChars:    cfg.MinTextChars,
		minSignal:       cfg.MinSignal,
		requireKeywords: cfg.RequireKeywords,
	}
	for _, pattern := range cfg.NoisePatterns {
		if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("prefilter noise pattern %q: %w", pattern, err)
			}
			f.noise = append(f.noise, noiseRule{raw: pattern, re: re})
			continue
		}
		f.noise = append(f.noise, noiseRule{raw: pattern, folded: f.normalize(pattern)})
	}
	for _, keyword := range cfg.Keywords {
		if folded := f.normalize(keyword); folded != "" {
			f.keywords = append(f.keywords, folded)
		}
	}
	return f, nil
}

// normalize applies NFKC and case folding so "Ｌｌｍ" and "LLM" compare equal.
// A Caser is stateful, so one is created per call.
func (f *Filter) normalize(value string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(value)))
}

// Passes reports whether item survives every rule.
func (f *Filter) Passes(item store.Item) bool {
	return f.Check(item).Pass
}

// Check evaluates item against the rules in a fixed order and reports the
// first one it fails.
func (f *Filter) Check(item store.Item) Decision {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Decision{Reason: ReasonEmptyTitle}
	}
	body := strings.TrimSpace(item.Body)
	if length := utf8.RuneCountInString(title) + utf8.RuneCountInString(body); length < f.minTextChars {
		return Decision{Reason: ReasonTooShort, Detail: fmt.Sprintf("%d < %d chars", length, f.minTextChars)}
	}

	foldedTitle := f.normalize(title)
	for _, rule := range f.noise {
		if rule.re != nil {
			if rule.re.MatchString(title) {
				return Decision{Reason: ReasonNoise, Detail: rule.raw}
			}
			continue
		}
		if rule.folded != "" && strings.Contains(foldedTitle, rule.folded) {
			return Decision{Reason: ReasonNoise, Detail: rule.raw}
		}
	}

	if item.Engagement.Score < f.minSignal {
		return Decision{Reason: ReasonLowSignal, Detail: fmt.Sprintf("score %d < %d", item.Engagement.Score, f.minSignal)}
	}

	if f.requireKeywords && len(f.keywords) > 0 {
		text := f.normalize(title + "\n" + body)
		matched := false
		for _, keyword := range f.keywords {
			if strings.Contains(text, keyword) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Reason: ReasonNoKeyword}
		}
	}
	return Decision{Pass: true}
}
