package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FeedPulse/internal/cache"
	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/infrastructure/breaker"
	"FeedPulse/internal/logging"
	"FeedPulse/internal/metrics"
	"FeedPulse/internal/ports"
	"FeedPulse/internal/rank"
)

// Settings is the part of the configuration the feed service acts on.
type Settings struct {
	Feeds           []string
	DefaultFeed     string
	Policy          cache.Policy
	Version         int
	FetchTimeout    time.Duration
	SummaryTimeout  time.Duration
	RefreshTimeout  time.Duration
	FingerprintSize int
	Budget          domain.SummaryBudget
	BreakerFailures int
	BreakerCooldown time.Duration
}

// SettingsFromConfig maps the loaded configuration onto Settings.
func SettingsFromConfig(cfg config.Config) Settings {
	feeds := make([]string, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		feeds = append(feeds, feed.Name)
	}
	return Settings{
		Feeds:           feeds,
		DefaultFeed:     cfg.DefaultFeed,
		Policy:          cache.Policy{RawTTL: cfg.Cache.RawTTL, DerivedTTL: cfg.Cache.DerivedTTL},
		Version:         cfg.Cache.Version,
		FetchTimeout:    cfg.Cache.FetchTimeout,
		SummaryTimeout:  cfg.Cache.SummaryTimeout,
		RefreshTimeout:  cfg.Cache.RefreshTimeout,
		FingerprintSize: cfg.Ranking.FingerprintSize,
		Budget: domain.SummaryBudget{
			MaxItems:        cfg.Summarizer.MaxItems,
			MaxOutputTokens: cfg.Summarizer.MaxTokens,
		},
		BreakerFailures: cfg.Summarizer.BreakerFailures,
		BreakerCooldown: cfg.Summarizer.BreakerCooldown,
	}
}

// FeedServiceDeps wires all driven adapters into the feed service.
// Summarizer, History, Notifier and Metrics are optional.
type FeedServiceDeps struct {
	Source     ports.ItemSource
	Scorer     *rank.Scorer
	Summarizer ports.Summarizer
	History    ports.HistoryRepository
	Notifier   ports.Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// FeedService serves ranked feeds with summaries through the freshness cache.
type FeedService struct {
	settings   Settings
	source     ports.ItemSource
	scorer     *rank.Scorer
	summarizer ports.Summarizer
	breaker    *breaker.Breaker
	history    ports.HistoryRepository
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	cache *cache.Group[domain.Snapshot]
	known map[string]bool
}

// NewFeedService constructs the service and its cache group.
func NewFeedService(settings Settings, deps FeedServiceDeps) (*FeedService, error) {
	if deps.Source == nil {
		return nil, errors.New("feed service: item source is required")
	}
	if len(settings.Feeds) == 0 {
		return nil, errors.New("feed service: no feeds configured")
	}
	if settings.DefaultFeed == "" {
		settings.DefaultFeed = settings.Feeds[0]
	}
	if settings.FingerprintSize <= 0 {
		settings.FingerprintSize = 10
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = rank.NewScorer(rank.DefaultWeights(), nil, 10)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	s := &FeedService{
		settings:   settings,
		source:     deps.Source,
		scorer:     scorer,
		summarizer: deps.Summarizer,
		history:    deps.History,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
		known:      make(map[string]bool, len(settings.Feeds)),
	}
	for _, feed := range settings.Feeds {
		s.known[feed] = true
	}
	if !s.known[settings.DefaultFeed] {
		return nil, fmt.Errorf("feed service: default feed %s is not configured", settings.DefaultFeed)
	}

	s.breaker = breaker.New(breaker.Config{
		FailureThreshold: settings.BreakerFailures,
		Cooldown:         settings.BreakerCooldown,
		OnStateChange: func(from, to breaker.State) {
			logger.Warn("summarizer breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	opts := []cache.Option{cache.WithRefreshTimeout(settings.RefreshTimeout), cache.WithClock(now)}
	if deps.Metrics != nil {
		opts = append(opts, cache.WithObserver(deps.Metrics))
	}
	s.cache = cache.NewGroup[domain.Snapshot](settings.Policy, settings.Version, opts...)

	return s, nil
}

// Feeds lists configured feed names in configuration order.
func (s *FeedService) Feeds() []string {
	return append([]string(nil), s.settings.Feeds...)
}

// DefaultFeed names the feed served when none is requested.
func (s *FeedService) DefaultFeed() string {
	return s.settings.DefaultFeed
}

// Policy exposes the freshness policy, e.g. for Cache-Control headers.
func (s *FeedService) Policy() cache.Policy {
	return s.settings.Policy
}

// BumpVersion invalidates every feed slot.
func (s *FeedService) BumpVersion() int {
	v := s.cache.BumpVersion()
	s.logger.Info("cache version bumped", "version", v)
	return v
}

// Get returns the ranked snapshot for feed, refreshing it when the cached
// copy is missing or expired. An empty name selects the default feed.
func (s *FeedService) Get(ctx context.Context, feed string) (domain.FeedResult, error) {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		feed = s.settings.DefaultFeed
	}
	if !s.known[feed] {
		return domain.FeedResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownFeed, feed)
	}

	res, err := s.cache.Get(ctx, feed, func(ctx context.Context, prev *cache.Entry[domain.Snapshot]) (domain.Snapshot, string, error) {
		return s.refresh(ctx, feed, prev)
	})
	if err != nil {
		return domain.FeedResult{}, err
	}
	if res.Stale {
		s.logger.Warn("serving stale feed", "feed", feed, "filled_at", res.Entry.FilledAt)
	}

	return domain.FeedResult{
		Feed:     feed,
		Snapshot: res.Entry.Value,
		Updated:  res.Entry.FilledAt,
		Cached:   res.Cached,
		Stale:    res.Stale,
	}, nil
}

// Warm touches every configured feed so readers find them cached. Per-feed
// failures are logged and joined; they never stop the other feeds.
func (s *FeedService) Warm(ctx context.Context) error {
	var errs []error
	for _, feed := range s.settings.Feeds {
		if _, err := s.Get(ctx, feed); err != nil {
			s.logger.Error("warm feed failed", "feed", feed, "error", err)
			errs = append(errs, fmt.Errorf("warm %s: %w", feed, err))
		}
	}
	return errors.Join(errs...)
}

// refresh runs fetch, rank and change detection, and decides whether the
// summary must be regenerated.
func (s *FeedService) refresh(ctx context.Context, feed string, prev *cache.Entry[domain.Snapshot]) (domain.Snapshot, string, error) {
	start := s.now()

	fetchCtx, cancel := s.withTimeout(ctx, s.settings.FetchTimeout)
	items, err := s.source.FetchItems(fetchCtx, feed)
	cancel()
	if err != nil {
		s.logger.Error("refresh feed failed", "feed", feed, "error", err, "has_previous", prev != nil)
		s.record(ctx, domain.RefreshRecord{
			Feed:       feed,
			Stale:      prev != nil,
			Error:      err.Error(),
			Duration:   s.now().Sub(start),
			RecordedAt: s.now(),
		})
		return domain.Snapshot{}, "", err
	}

	ranked := s.scorer.Rank(items, s.now())
	fingerprint := rank.Fingerprint(ranked, s.settings.FingerprintSize)
	snapshot := domain.Snapshot{Items: ranked}

	regenerate := prev == nil || rank.HasChanged(prev.Fingerprint, fingerprint) || s.summaryExpired(prev.Value)
	if regenerate {
		snapshot.Summary, snapshot.SummaryFallback = s.summarize(ctx, feed, ranked)
		snapshot.SummaryAt = s.now()
	} else {
		snapshot.Summary = prev.Value.Summary
		snapshot.SummaryAt = prev.Value.SummaryAt
		snapshot.SummaryFallback = prev.Value.SummaryFallback
		s.metrics.ObserveSummary(feed, metrics.SummaryReused)
	}

	s.logger.Info("feed refreshed",
		"feed", feed,
		"items", len(ranked),
		"fingerprint", fingerprint,
		"summary_regenerated", regenerate,
		"summary_fallback", snapshot.SummaryFallback,
		"duration", s.now().Sub(start),
	)
	s.record(ctx, domain.RefreshRecord{
		Feed:               feed,
		Fingerprint:        fingerprint,
		ItemCount:          len(ranked),
		SummaryRegenerated: regenerate,
		SummaryFallback:    snapshot.SummaryFallback,
		Duration:           s.now().Sub(start),
		RecordedAt:         s.now(),
	})
	if regenerate && !snapshot.SummaryFallback {
		s.notify(ctx, feed, snapshot)
	}

	return snapshot, fingerprint, nil
}

// summaryExpired applies the optional DerivedTTL ceiling.
func (s *FeedService) summaryExpired(prev domain.Snapshot) bool {
	ttl := s.settings.Policy.DerivedTTL
	return ttl > 0 && s.now().Sub(prev.SummaryAt) >= ttl
}

// summarize never fails: any problem yields the fallback text and true.
func (s *FeedService) summarize(ctx context.Context, feed string, ranked []domain.RankedItem) (string, bool) {
	fallback := FallbackSummary(feed, len(ranked))
	if s.summarizer == nil || len(ranked) == 0 {
		s.metrics.ObserveSummary(feed, metrics.SummaryFallback)
		return fallback, true
	}

	var summary string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := s.withTimeout(ctx, s.settings.SummaryTimeout)
		defer cancel()
		text, err := s.summarizer.Summarize(callCtx, feed, ranked, s.settings.Budget)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: empty summary", domain.ErrSummarizerUnavailable)
		}
		summary = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		s.logger.Warn("summarizer unavailable, using fallback", "feed", feed, "error", err)
		s.metrics.ObserveSummary(feed, metrics.SummaryFallback)
		return fallback, true
	}

	s.metrics.ObserveSummary(feed, metrics.SummaryGenerated)
	return summary, false
}

func (s *FeedService) record(ctx context.Context, rec domain.RefreshRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordRefresh(ctx, rec); err != nil {
		s.logger.Warn("record refresh failed", "feed", rec.Feed, "error", err)
	}
}

func (s *FeedService) notify(ctx context.Context, feed string, snapshot domain.Snapshot) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishDigest(ctx, buildDigestMessage(feed, snapshot)); err != nil {
		s.logger.Warn("publish digest failed", "feed", feed, "error", err)
	}
}

func (s *FeedService) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// FallbackSummary is the deterministic text used whenever no summary can be generated.
func FallbackSummary(feed string, count int) string {
	return fmt.Sprintf("%d posts from %s right now. Summary temporarily unavailable.", count, feed)
}

const digestTopItems = 3

func buildDigestMessage(feed string, snapshot domain.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n%s\n", feed, snapshot.Summary)

	top := snapshot.Items
	if len(top) > digestTopItems {
		top = top[:digestTopItems]
	}
	if len(top) > 0 {
		sb.WriteString("\n")
	}
	for _, it := range top {
		fmt.Fprintf(&sb, "%d. %s\nScore: %.2f\n", it.Rank+1, it.Title, it.Score)
		if it.URL != "" {
			fmt.Fprintf(&sb, "%s\n", it.URL)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
