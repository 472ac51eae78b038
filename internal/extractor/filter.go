package extractor

import (
	"strings"
	"unicode/utf8"

	"FeedPulse/internal/domain"
)

// Dedupe drops repeated IDs keeping the first occurrence, and items without an ID.
func Dedupe(items []domain.Item) []domain.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ContentFilter rejects items whose body is too short or contains a denied term.
// The zero value accepts everything.
type ContentFilter struct {
	MinLength int
	Denylist  []string
}

// Accept reports whether a single body passes the filter.
func (f ContentFilter) Accept(body string) bool {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) < f.MinLength {
		return false
	}
	if len(f.Denylist) == 0 {
		return true
	}
	lower := strings.ToLower(body)
	for _, term := range f.Denylist {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

// Apply keeps the items whose body passes; rejections never stop the batch.
func (f ContentFilter) Apply(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if f.Accept(it.Body) {
			out = append(out, it)
		}
	}
	return out
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
