package domain

import "time"

// Item is one normalized post pulled from an upstream feed.
// Two items with the same ID are the same logical post.
type Item struct {
	ID         string
	Title      string
	Body       string
	URL        string
	Engagement float64
	Comments   int
	CreatedAt  time.Time
	Author     string
	Group      string
}

// RankedItem is an Item with the score computed for one ranking pass.
type RankedItem struct {
	Item
	Score float64
	Rank  int
}

// Snapshot is what a feed slot caches: the visible ranked set and the
// summary derived from it.
type Snapshot struct {
	Items           []RankedItem
	Summary         string
	SummaryAt       time.Time
	SummaryFallback bool
}

// IDs returns item identities in rank order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	return ids
}

// FeedResult is a snapshot together with its cache provenance.
type FeedResult struct {
	Feed     string
	Snapshot Snapshot
	Updated  time.Time
	Cached   bool
	Stale    bool
}

// RefreshRecord captures one refresh attempt for the history log.
type RefreshRecord struct {
	Feed               string
	Fingerprint        string
	ItemCount          int
	SummaryRegenerated bool
	SummaryFallback    bool
	Stale              bool
	Error              string
	Duration           time.Duration
	RecordedAt         time.Time
}

// SummaryBudget bounds the input and output of one summarization call.
type SummaryBudget struct {
	MaxItems        int
	MaxOutputTokens int
}
