package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
)

const defaultPostSelector = ".post"

var (
	relativeExpr = regexp.MustCompile(`^(\d+)\s*([smhdw])`)
	countExpr    = regexp.MustCompile(`\d[\d,]*`)
)

// MarkupExtractor pulls posts out of a server-rendered timeline page
// (MoltX-style markup: span.handle, a.time linking /post/<id>, div.content).
// It is deliberately narrow: an upstream markup change means swapping this
// implementation, not generalizing it.
type MarkupExtractor struct {
	fetcher *Fetcher
	now     func() time.Time
}

var _ extractor.Extractor = (*MarkupExtractor)(nil)

// NewMarkupExtractor wires a fetcher; nil builds a default one.
func NewMarkupExtractor(fetcher *Fetcher) *MarkupExtractor {
	if fetcher == nil {
		fetcher = NewFetcher(nil, "text/html")
	}
	return &MarkupExtractor{fetcher: fetcher, now: time.Now}
}

// Name identifies the extractor inside the registry.
func (m *MarkupExtractor) Name() string {
	return "markup"
}

// Fetch downloads the timeline page.
func (m *MarkupExtractor) Fetch(ctx context.Context, src extractor.Source) ([]byte, error) {
	return m.fetcher.Get(ctx, src.URL)
}

// Parse walks every post container. Posts without an id are skipped;
// an unparsable document is a domain.ErrParse. Bodies are kept whole so
// content filters see all of them.
func (m *MarkupExtractor) Parse(src extractor.Source, raw []byte) ([]domain.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse document: %v", domain.ErrParse, err)
	}

	selector := option(src.Options, "post_selector", defaultPostSelector)
	base := baseURL(src.URL)
	now := m.now().UTC()

	var items []domain.Item
	doc.Find(selector).Each(func(_ int, post *goquery.Selection) {
		item, ok := parsePost(post, base, now)
		if !ok {
			return
		}
		items = append(items, item)
	})

	return extractor.Dedupe(items), nil
}

func parsePost(post *goquery.Selection, base string, now time.Time) (domain.Item, bool) {
	link := post.Find("a.time").First()
	href, _ := link.Attr("href")
	id := postID(href)
	if id == "" {
		return domain.Item{}, false
	}

	handle := strings.TrimPrefix(strings.TrimSpace(post.Find("span.handle").First().Text()), "@")
	content := collapseSpace(post.Find("div.content").First().Text())

	createdAt := time.Time{}
	if stamp, ok := link.Find("time").Attr("datetime"); ok {
		createdAt = parseTimestamp(stamp)
	} else if stamp, ok := link.Attr("datetime"); ok {
		createdAt = parseTimestamp(stamp)
	}
	if createdAt.IsZero() {
		createdAt = parseRelative(strings.TrimSpace(link.Text()), now)
	}

	itemURL := href
	if !strings.HasPrefix(itemURL, "http") {
		itemURL = strings.TrimSuffix(base, "/") + "/post/" + id
	}

	return domain.Item{
		ID:         id,
		Title:      extractor.Truncate(content, 120),
		Body:       content,
		URL:        itemURL,
		Engagement: parseCount(post.Find(".likes").First().Text()),
		Comments:   int(parseCount(post.Find(".replies").First().Text())),
		CreatedAt:  createdAt,
		Author:     handle,
	}, true
}

func postID(href string) string {
	const marker = "/post/"
	idx := strings.Index(href, marker)
	if idx < 0 {
		return ""
	}
	id := href[idx+len(marker):]
	if cut := strings.IndexAny(id, "/?#"); cut >= 0 {
		id = id[:cut]
	}
	return strings.TrimSpace(id)
}

// parseRelative understands the "5m", "2h", "3d" stamps timelines render.
func parseRelative(text string, now time.Time) time.Time {
	match := relativeExpr.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return time.Time{}
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[match[2]]
	return now.Add(-time.Duration(n) * unit)
}

func parseCount(text string) float64 {
	match := countExpr.FindString(text)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func baseURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func option(opts map[string]string, key, fallback string) string {
	if v, ok := opts[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
