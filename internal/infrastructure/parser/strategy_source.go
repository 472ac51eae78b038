package parser

import (
	"context"
	"fmt"
	"log/slog"

	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
	"FeedPulse/internal/ports"
)

// StrategySource implements ItemSource via registered extractor strategies.
type StrategySource struct {
	registry *extractor.Registry
	cfg      config.Config
	logger   *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires the extractor registry with config-defined feeds.
func NewStrategySource(reg *extractor.Registry, cfg config.Config, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		cfg:      cfg,
		logger:   log,
	}
}

// FetchItems runs fetch and parse for one feed, then applies its content
// filter, item cap and body limit, in that order.
func (s *StrategySource) FetchItems(ctx context.Context, feed string) ([]domain.Item, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("extractor registry is not configured")
	}

	cfg, ok := s.cfg.Feed(feed)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFeed, feed)
	}

	strategy, err := s.registry.Resolve(cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed, err)
	}

	src := extractor.Source{Feed: cfg.Name, URL: cfg.URL, Options: cfg.Options}
	s.debug("fetch feed", "feed", feed, "extractor", cfg.Extractor, "url", cfg.URL)

	raw, err := strategy.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed, err)
	}

	items, err := strategy.Parse(src, raw)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed, err)
	}
	parsed := len(items)

	filter := extractor.ContentFilter{MinLength: cfg.MinLength, Denylist: cfg.Denylist}
	items = filter.Apply(items)
	if cfg.MaxItems > 0 && len(items) > cfg.MaxItems {
		items = items[:cfg.MaxItems]
	}

	for i := range items {
		if items[i].Group == "" {
			items[i].Group = feed
		}
		items[i].Body = extractor.Truncate(items[i].Body, cfg.MaxBody)
	}

	s.debug("feed produced items", "feed", feed, "parsed", parsed, "kept", len(items))
	return items, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
