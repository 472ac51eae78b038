package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
	"FeedPulse/internal/infrastructure/llm"
	"FeedPulse/internal/infrastructure/parser"
	"FeedPulse/internal/infrastructure/scheduler"
	"FeedPulse/internal/infrastructure/storage"
	"FeedPulse/internal/infrastructure/telegram"
	"FeedPulse/internal/logging"
	"FeedPulse/internal/metrics"
	"FeedPulse/internal/ports"
	"FeedPulse/internal/rank"
	"FeedPulse/internal/ratelimit"
	"FeedPulse/internal/transport/httpapi"
	"FeedPulse/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	feeds     *usecase.FeedService
	limiter   *ratelimit.Limiter
	history   *storage.HistoryRepository
	scheduler *usecase.Scheduler
	router    *gin.Engine
}

// New builds every adapter from configuration. Optional adapters
// (summarizer, history, Telegram) are skipped when not configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	m := metrics.New()

	fetchClient := &http.Client{Timeout: cfg.Cache.FetchTimeout}
	throttle := parser.WithThrottle(cfg.Fetch.Throttle, cfg.Fetch.Burst)
	ua := parser.WithUserAgent(cfg.Fetch.UserAgent)

	registry := extractor.NewRegistry()
	registry.Register(parser.NewJSONExtractor(parser.NewFetcher(fetchClient, "application/json", ua, throttle)))
	registry.Register(parser.NewMarkupExtractor(parser.NewFetcher(fetchClient, "text/html", ua, throttle)))
	registry.Register(parser.NewRSSExtractor(parser.NewFetcher(fetchClient, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8", ua, throttle)))

	source := parser.NewStrategySource(registry, cfg, baseLogger.With("component", "source"))

	summarizer, err := llm.New(cfg.Summarizer, nil)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	if summarizer == nil {
		baseLogger.Warn("no summarizer api key configured, summaries will use the fallback text")
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: m}

	var history ports.HistoryRepository
	if cfg.History.DSN != "" {
		repo, err := storage.Open(ctx, cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		a.history = repo
		history = repo
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	feeds, err := usecase.NewFeedService(usecase.SettingsFromConfig(cfg), usecase.FeedServiceDeps{
		Source:     source,
		Scorer:     rank.NewScorer(rank.DefaultWeights(), nil, cfg.Ranking.TopK),
		Summarizer: summarizer,
		History:    history,
		Notifier:   notifier,
		Metrics:    m,
		Logger:     baseLogger.With("component", "feeds"),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.feeds = feeds
	a.limiter = ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)

	schedDeps := usecase.SchedulerDeps{
		Feeds:   feeds,
		Limiter: a.limiter,
		Logger:  baseLogger.With("component", "scheduler"),
		OnSweep: func(remaining int) { m.LimiterKeys.Set(float64(remaining)) },
	}
	cronLog := baseLogger.With("component", "cron")
	switch {
	case cfg.Scheduler.WarmSchedule != "":
		schedDeps.WarmDriver = scheduler.NewCronScheduler(cfg.Scheduler.WarmSchedule, true, cronLog)
	case cfg.Scheduler.WarmInterval > 0:
		schedDeps.WarmDriver = scheduler.NewCronScheduler(scheduler.EverySpec(cfg.Scheduler.WarmInterval), true, cronLog)
	}
	if cfg.RateLimit.SweepInterval > 0 {
		schedDeps.SweepDriver = scheduler.NewCronScheduler(scheduler.EverySpec(cfg.RateLimit.SweepInterval), false, cronLog)
	}
	a.scheduler = usecase.NewScheduler(schedDeps, cfg.Cache.RefreshTimeout)

	gin.SetMode(cfg.Server.Mode)
	a.router = httpapi.NewRouter(httpapi.Deps{
		Feeds:   feeds,
		Limiter: a.limiter,
		Metrics: m,
		Logger:  baseLogger.With("component", "http"),
	})

	return a, nil
}

// Handler exposes the HTTP router.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Serve runs background jobs and the HTTP server until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := httpapi.NewServer(a.cfg.Server, a.router, a.logger.With("component", "server"))
	runErr := server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.scheduler.Stop(stopCtx))
}

// Fetch refreshes or reads one feed, exactly as the HTTP handler would.
func (a *Application) Fetch(ctx context.Context, feed string) (domain.FeedResult, error) {
	return a.feeds.Get(ctx, feed)
}

// History lists recent refresh records for feed.
func (a *Application) History(ctx context.Context, feed string, limit int) ([]domain.RefreshRecord, error) {
	if a.history == nil {
		return nil, errors.New("history is disabled: set history.dsn")
	}
	if feed == "" {
		feed = a.feeds.DefaultFeed()
	}
	return a.history.Recent(ctx, feed, limit)
}

// Close releases the history database.
func (a *Application) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}
