// Package httpapi is the gin transport in front of the feed service.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"FeedPulse/internal/cache"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/logging"
	"FeedPulse/internal/metrics"
	"FeedPulse/internal/ratelimit"
)

// FeedReader is what the handlers need from the feed service.
type FeedReader interface {
	Get(ctx context.Context, feed string) (domain.FeedResult, error)
	BumpVersion() int
	Policy() cache.Policy
}

// Admitter decides whether a caller may proceed.
type Admitter interface {
	Admit(key string) ratelimit.Decision
}

// Deps wires the router. Limiter and Metrics are optional.
type Deps struct {
	Feeds   FeedReader
	Limiter Admitter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

type handler struct {
	feeds   FeedReader
	limiter Admitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	h := &handler{feeds: deps.Feeds, limiter: deps.Limiter, metrics: deps.Metrics, logger: logger, now: now}

	r := gin.New()
	r.Use(RequestID(), Recovery(logger), Logger(logger), Instrument(deps.Metrics))

	r.GET("/healthz", h.health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	limited := r.Group("/", h.rateLimit)
	limited.GET("/feed", h.feed)
	limited.GET("/feeds/:name", h.feed)
	limited.POST("/admin/cache/bump", h.bump)
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) rateLimit(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	key := clientKey(c.Request)
	d := h.limiter.Admit(key)
	if d.Allowed {
		c.Next()
		return
	}

	if h.metrics != nil {
		h.metrics.RateLimited.Inc()
	}
	_ = c.Error(fmt.Errorf("%w: client %s, retry after %s", domain.ErrRateLimited, key, d.RetryAfter))
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
}

func (h *handler) feed(c *gin.Context) {
	name := c.Param("name")
	res, err := h.feeds.Get(c.Request.Context(), name)
	if err != nil {
		h.fail(c, name, err)
		return
	}

	switch {
	case res.Stale:
		c.Header("X-Cache", "STALE")
	case res.Cached:
		c.Header("X-Cache", "HIT")
	default:
		c.Header("X-Cache", "MISS")
	}
	c.Header("Cache-Control", cacheControl(h.feeds.Policy().RawTTL))
	c.JSON(http.StatusOK, newFeedResponse(res, h.now()))
}

func (h *handler) fail(c *gin.Context, name string, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, domain.ErrUnknownFeed):
		c.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown feed %q", name)})
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		c.Status(499)
	default:
		c.JSON(http.StatusInternalServerError, failureResponse{
			Error: "Failed to fetch posts",
			Posts: []postResponse{},
		})
	}
}

func (h *handler) bump(c *gin.Context) {
	v := h.feeds.BumpVersion()
	h.logger.Info("cache version bumped", "version", v, "client", clientKey(c.Request))
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func cacheControl(rawTTL time.Duration) string {
	secs := int(rawTTL / time.Second)
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", secs, 2*secs)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
