// Package rank scores feed items and fingerprints the visible ranked set.
package rank

import (
	"sort"
	"strings"
	"time"

	"FeedPulse/internal/domain"
)

// DefaultKeywords is the "interesting" vocabulary matched against titles.
var DefaultKeywords = []string{
	"experiment", "consciousness", "discovered", "broke", "insane", "wild",
	"agi", "recursive", "emergent", "realized", "theory", "proof", "hack",
}

// Weights holds the multiplicative boosts and their thresholds.
type Weights struct {
	DiscussionRatio float64
	DiscussionBoost float64
	KeywordBoost    float64
	DayWindow       time.Duration
	DayBoost        float64
	FreshWindow     time.Duration
	FreshBoost      float64
}

// DefaultWeights returns the reference boost table.
func DefaultWeights() Weights {
	return Weights{
		DiscussionRatio: 0.1,
		DiscussionBoost: 1.5,
		KeywordBoost:    1.5,
		DayWindow:       24 * time.Hour,
		DayBoost:        1.2,
		FreshWindow:     6 * time.Hour,
		FreshBoost:      1.3,
	}
}

// Scorer ranks items by engagement with discussion, keyword and recency boosts.
type Scorer struct {
	weights  Weights
	keywords []string
	topK     int
}

// NewScorer builds a scorer keeping topK results; nil keywords use DefaultKeywords.
func NewScorer(weights Weights, keywords []string, topK int) *Scorer {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Scorer{weights: weights, keywords: lowered, topK: topK}
}

// Score computes one item's score at instant now.
func (s *Scorer) Score(item domain.Item, now time.Time) float64 {
	w := s.weights
	score := item.Engagement

	if float64(item.Comments)/(item.Engagement+1) > w.DiscussionRatio {
		score *= w.DiscussionBoost
	}

	if s.hasKeyword(item.Title) {
		score *= w.KeywordBoost
	}

	if !item.CreatedAt.IsZero() {
		age := now.Sub(item.CreatedAt)
		if age < w.DayWindow {
			score *= w.DayBoost
		}
		if age < w.FreshWindow {
			score *= w.FreshBoost
		}
	}

	return score
}

// Rank scores items at instant now, sorts them descending (ties keep input
// order) and returns at most topK. The input slice is not modified.
func (s *Scorer) Rank(items []domain.Item, now time.Time) []domain.RankedItem {
	ranked := make([]domain.RankedItem, len(items))
	for i, it := range items {
		ranked[i] = domain.RankedItem{Item: it, Score: s.Score(it, now)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if s.topK > 0 && len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}
	for i := range ranked {
		ranked[i].Rank = i
	}
	return ranked
}

func (s *Scorer) hasKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
