package rank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPulse/internal/domain"
)

var now = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

func TestDiscussionAndKeywordOutweighUpvotes(t *testing.T) {
	items := []domain.Item{
		{ID: "a", Engagement: 10, Comments: 1, Title: "update", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Engagement: 5, Comments: 8, Title: "AGI breakthrough discovered", CreatedAt: now.Add(-time.Hour)},
	}

	ranked := NewScorer(DefaultWeights(), nil, 10).Rank(items, now)

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "a", ranked[1].ID)
	assert.InDelta(t, 17.55, ranked[0].Score, 1e-9)
	assert.InDelta(t, 15.6, ranked[1].Score, 1e-9)
	assert.Equal(t, 0, ranked[0].Rank)
	assert.Equal(t, 1, ranked[1].Rank)
}

func TestScoreBoosts(t *testing.T) {
	s := NewScorer(DefaultWeights(), nil, 0)
	old := now.Add(-48 * time.Hour)

	cases := []struct {
		name string
		item domain.Item
		want float64
	}{
		{"plain", domain.Item{Engagement: 100, CreatedAt: old}, 100},
		{"discussion", domain.Item{Engagement: 100, Comments: 11, CreatedAt: old}, 150},
		{"ratio at threshold", domain.Item{Engagement: 9, Comments: 1, CreatedAt: old}, 9},
		{"keyword case-insensitive", domain.Item{Engagement: 10, Title: "A Wild Theory", CreatedAt: old}, 15},
		{"keyword counted once", domain.Item{Engagement: 10, Title: "wild insane hack", CreatedAt: old}, 15},
		{"within a day", domain.Item{Engagement: 10, CreatedAt: now.Add(-12 * time.Hour)}, 12},
		{"within six hours", domain.Item{Engagement: 10, CreatedAt: now.Add(-time.Hour)}, 15.6},
		{"unknown age", domain.Item{Engagement: 10}, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, s.Score(tc.item, now), 1e-9)
		})
	}
}

func TestRankIsDeterministicAndStable(t *testing.T) {
	items := make([]domain.Item, 30)
	for i := range items {
		items[i] = domain.Item{
			ID:         fmt.Sprintf("p%02d", i),
			Engagement: float64(i % 5),
			Comments:   i % 3,
			CreatedAt:  now.Add(-time.Duration(i) * time.Hour),
		}
	}
	s := NewScorer(DefaultWeights(), nil, 0)

	first := s.Rank(items, now)
	second := s.Rank(items, now)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		require.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
		if first[i-1].Score == first[i].Score {
			assert.Less(t, first[i-1].ID, first[i].ID, "ties keep input order")
		}
	}
}

func TestRankCapsAtTopKWithoutTouchingInput(t *testing.T) {
	items := []domain.Item{{ID: "x", Engagement: 1}, {ID: "y", Engagement: 3}, {ID: "z", Engagement: 2}}
	ranked := NewScorer(DefaultWeights(), []string{}, 2).Rank(items, now)

	require.Len(t, ranked, 2)
	assert.Equal(t, []string{"y", "z"}, []string{ranked[0].ID, ranked[1].ID})
	assert.Equal(t, "x", items[0].ID)
}

func TestCustomKeywords(t *testing.T) {
	s := NewScorer(DefaultWeights(), []string{"  Rust "}, 0)
	assert.InDelta(t, 15, s.Score(domain.Item{Engagement: 10, Title: "why RUST"}, now), 1e-9)
	assert.InDelta(t, 10, s.Score(domain.Item{Engagement: 10, Title: "AGI"}, now), 1e-9)
}
