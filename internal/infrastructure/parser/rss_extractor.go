package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
)

// rssBaseEngagement gives every entry the same base signal so recency and
// keyword boosts decide the order; feeds carry no vote counts.
const rssBaseEngagement = 1

// RSSExtractor reads RSS and Atom feeds (newsletters, blog feeds).
type RSSExtractor struct {
	fetcher *Fetcher
}

var _ extractor.Extractor = (*RSSExtractor)(nil)

// NewRSSExtractor wires a fetcher; nil builds a default one.
func NewRSSExtractor(fetcher *Fetcher) *RSSExtractor {
	if fetcher == nil {
		fetcher = NewFetcher(nil, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	}
	return &RSSExtractor{fetcher: fetcher}
}

// Name identifies the extractor inside the registry.
func (r *RSSExtractor) Name() string {
	return "rss"
}

// Fetch downloads the feed document.
func (r *RSSExtractor) Fetch(ctx context.Context, src extractor.Source) ([]byte, error) {
	return r.fetcher.Get(ctx, src.URL)
}

// Parse converts feed entries; entries with neither GUID nor link are skipped.
func (r *RSSExtractor) Parse(_ extractor.Source, raw []byte) ([]domain.Item, error) {
	feed, err := gofeed.NewParser().ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", domain.ErrParse, err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		id := strings.TrimSpace(entry.GUID)
		if id == "" {
			id = strings.TrimSpace(entry.Link)
		}
		if id == "" {
			continue
		}

		body := entry.Description
		if body == "" {
			body = entry.Content
		}

		author := feed.Title
		if entry.Author != nil && entry.Author.Name != "" {
			author = entry.Author.Name
		}

		items = append(items, domain.Item{
			ID:         id,
			Title:      strings.TrimSpace(entry.Title),
			Body:       stripMarkup(body),
			URL:        entry.Link,
			Engagement: rssBaseEngagement,
			CreatedAt:  entryTime(entry),
			Author:     author,
			Group:      feed.Title,
		})
	}

	return extractor.Dedupe(items), nil
}

func entryTime(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

func stripMarkup(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	return collapseSpace(doc.Text())
}
