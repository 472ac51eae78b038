package ports

import (
	"context"
	"time"

	"FeedPulse/internal/domain"
)

// ItemSource pulls and normalizes posts for a configured feed.
type ItemSource interface {
	FetchItems(ctx context.Context, feed string) ([]domain.Item, error)
}

// Summarizer derives a text artifact from ranked items via a generative model.
type Summarizer interface {
	Summarize(ctx context.Context, feed string, items []domain.RankedItem, budget domain.SummaryBudget) (string, error)
}

// HistoryRepository records refresh outcomes for audit.
type HistoryRepository interface {
	RecordRefresh(ctx context.Context, record domain.RefreshRecord) error
}

// Notifier streams regenerated summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when background jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
