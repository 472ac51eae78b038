package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
)

// JSONExtractor reads the `{success, posts}` API shape served by
// Moltbook-style community feeds.
type JSONExtractor struct {
	fetcher *Fetcher
}

var _ extractor.Extractor = (*JSONExtractor)(nil)

// NewJSONExtractor wires a fetcher; nil builds a default one.
func NewJSONExtractor(fetcher *Fetcher) *JSONExtractor {
	if fetcher == nil {
		fetcher = NewFetcher(nil, "application/json")
	}
	return &JSONExtractor{fetcher: fetcher}
}

// Name identifies the extractor inside the registry.
func (j *JSONExtractor) Name() string {
	return "json"
}

// Fetch downloads the raw API payload.
func (j *JSONExtractor) Fetch(ctx context.Context, src extractor.Source) ([]byte, error) {
	return j.fetcher.Get(ctx, src.URL)
}

type postsEnvelope struct {
	Success bool              `json:"success"`
	Posts   []json.RawMessage `json:"posts"`
}

type apiPost struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	URL          *string `json:"url"`
	Upvotes      float64 `json:"upvotes"`
	CommentCount int     `json:"comment_count"`
	CreatedAt    string  `json:"created_at"`
	Author       struct {
		Name string `json:"name"`
	} `json:"author"`
	Submolt struct {
		Name string `json:"name"`
	} `json:"submolt"`
}

// Parse decodes the envelope strictly and each post tolerantly: a post that
// fails to decode or lacks an id is skipped.
func (j *JSONExtractor) Parse(_ extractor.Source, raw []byte) ([]domain.Item, error) {
	var env postsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", domain.ErrParse, err)
	}
	if !env.Success || env.Posts == nil {
		return nil, fmt.Errorf("%w: envelope without success/posts", domain.ErrParse)
	}

	items := make([]domain.Item, 0, len(env.Posts))
	for _, rawPost := range env.Posts {
		var p apiPost
		if err := json.Unmarshal(rawPost, &p); err != nil {
			continue
		}
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		item := domain.Item{
			ID:         id,
			Title:      strings.TrimSpace(p.Title),
			Body:       p.Content,
			Engagement: p.Upvotes,
			Comments:   p.CommentCount,
			CreatedAt:  parseTimestamp(p.CreatedAt),
			Author:     p.Author.Name,
			Group:      p.Submolt.Name,
		}
		if p.URL != nil {
			item.URL = *p.URL
		}
		items = append(items, item)
	}

	return extractor.Dedupe(items), nil
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
