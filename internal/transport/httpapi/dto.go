package httpapi

import (
	"fmt"
	"time"

	"FeedPulse/internal/domain"
)

type postResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Upvotes   float64 `json:"upvotes"`
	Comments  int     `json:"comments"`
	Author    string  `json:"author"`
	Group     string  `json:"group"`
	URL       string  `json:"url,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	Time      string  `json:"time"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
}

type feedResponse struct {
	Feed    string         `json:"feed"`
	Posts   []postResponse `json:"posts"`
	Summary string         `json:"summary"`
	Updated string         `json:"updated"`
	Cached  bool           `json:"cached"`
	Stale   bool           `json:"stale,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// failureResponse keeps the feed shape so clients can render an empty state.
type failureResponse struct {
	Error   string         `json:"error"`
	Posts   []postResponse `json:"posts"`
	Summary string         `json:"summary"`
}

func newFeedResponse(res domain.FeedResult, now time.Time) feedResponse {
	posts := make([]postResponse, 0, len(res.Snapshot.Items))
	for _, it := range res.Snapshot.Items {
		p := postResponse{
			ID:       it.ID,
			Title:    it.Title,
			Content:  it.Body,
			Upvotes:  it.Engagement,
			Comments: it.Comments,
			Author:   it.Author,
			Group:    it.Group,
			URL:      it.URL,
			Time:     formatTimeAgo(it.CreatedAt, now),
			Score:    it.Score,
			Rank:     it.Rank,
		}
		if !it.CreatedAt.IsZero() {
			p.CreatedAt = it.CreatedAt.UTC().Format(time.RFC3339)
		}
		posts = append(posts, p)
	}
	return feedResponse{
		Feed:    res.Feed,
		Posts:   posts,
		Summary: res.Snapshot.Summary,
		Updated: res.Updated.UTC().Format(time.RFC3339),
		Cached:  res.Cached,
		Stale:   res.Stale,
	}
}

// formatTimeAgo renders "42m ago", "5h ago" or "3d ago". Unknown times render
// empty and future times count as zero minutes.
func formatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	}
}
