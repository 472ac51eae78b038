package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPulse/internal/cache"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/logging"
	"FeedPulse/internal/metrics"
	"FeedPulse/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type stubFeeds struct {
	result  domain.FeedResult
	err     error
	bumped  int
	lastArg string
}

func (s *stubFeeds) Get(_ context.Context, feed string) (domain.FeedResult, error) {
	s.lastArg = feed
	return s.result, s.err
}

func (s *stubFeeds) BumpVersion() int {
	s.bumped++
	return s.bumped + 1
}

func (s *stubFeeds) Policy() cache.Policy {
	return cache.Policy{RawTTL: 5 * time.Minute}
}

func sampleResult() domain.FeedResult {
	return domain.FeedResult{
		Feed: "moltbook",
		Snapshot: domain.Snapshot{
			Items: []domain.RankedItem{{
				Item: domain.Item{
					ID:         "p1",
					Title:      "Emergent behaviour",
					Body:       "agents did a thing",
					Engagement: 42,
					Comments:   7,
					Author:     "clawd",
					Group:      "general",
					CreatedAt:  now.Add(-90 * time.Minute),
				},
				Score: 63,
				Rank:  0,
			}},
			Summary: "Agents talk about emergence.",
		},
		Updated: now.Add(-time.Minute),
		Cached:  true,
	}
}

func newTestRouter(feeds FeedReader, limiter Admitter) *gin.Engine {
	return NewRouter(Deps{
		Feeds:   feeds,
		Limiter: limiter,
		Metrics: metrics.New(),
		Clock:   func() time.Time { return now },
	})
}

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFeedReturnsPostsAndCacheHeaders(t *testing.T) {
	feeds := &stubFeeds{result: sampleResult()}
	rec := do(newTestRouter(feeds, nil), http.MethodGet, "/feed", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "public, s-maxage=300, stale-while-revalidate=600", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "", feeds.lastArg)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Agents talk about emergence.", body["summary"])
	assert.Equal(t, true, body["cached"])
	assert.NotContains(t, body, "stale")
	assert.Equal(t, "2026-07-01T11:59:00Z", body["updated"])

	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	post := posts[0].(map[string]any)
	assert.Equal(t, "p1", post["id"])
	assert.Equal(t, "agents did a thing", post["content"])
	assert.InDelta(t, 42, post["upvotes"], 0)
	assert.InDelta(t, 7, post["comments"], 0)
	assert.Equal(t, "clawd", post["author"])
	assert.Equal(t, "general", post["group"])
	assert.Equal(t, "1h ago", post["time"])
	assert.Equal(t, "2026-07-01T10:30:00Z", post["created_at"])
	assert.InDelta(t, 0, post["rank"], 0)
}

func TestFeedCacheHeaderVariants(t *testing.T) {
	cases := []struct {
		name   string
		cached bool
		stale  bool
		want   string
	}{
		{"miss", false, false, "MISS"},
		{"hit", true, false, "HIT"},
		{"stale", true, true, "STALE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := sampleResult()
			res.Cached, res.Stale = tc.cached, tc.stale
			rec := do(newTestRouter(&stubFeeds{result: res}, nil), http.MethodGet, "/feeds/moltbook", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.want, rec.Header().Get("X-Cache"))
		})
	}
}

func TestNamedFeedPassesName(t *testing.T) {
	feeds := &stubFeeds{result: sampleResult()}
	do(newTestRouter(feeds, nil), http.MethodGet, "/feeds/moltx", nil)
	assert.Equal(t, "moltx", feeds.lastArg)
}

func TestUnknownFeedIs404(t *testing.T) {
	feeds := &stubFeeds{err: fmt.Errorf("%w: nope", domain.ErrUnknownFeed)}
	rec := do(newTestRouter(feeds, nil), http.MethodGet, "/feeds/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown feed")
}

func TestUpstreamFailureIs500WithEmptyShape(t *testing.T) {
	feeds := &stubFeeds{err: fmt.Errorf("refresh moltbook: %w", domain.ErrUpstreamUnavailable)}
	rec := do(newTestRouter(feeds, nil), http.MethodGet, "/feed", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch posts","posts":[],"summary":""}`, rec.Body.String())
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	r := newTestRouter(&stubFeeds{result: sampleResult()}, limiter)
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/feed", hdr).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/feed", hdr).Code)

	rec := do(r, http.MethodGet, "/feed", hdr)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())

	other := do(r, http.MethodGet, "/feed", map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusOK, other.Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", hdr).Code, "health is not rate limited")
}

func TestRateLimitedRequestLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	r := NewRouter(Deps{
		Feeds:   &stubFeeds{result: sampleResult()},
		Limiter: ratelimit.New(1, time.Minute),
		Logger:  logging.NewWithWriter(&buf, "debug", "json"),
		Clock:   func() time.Time { return now },
	})
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/feed", hdr).Code)
	buf.Reset()
	require.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/feed", hdr).Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "http request rate limited", line["msg"])
	assert.Contains(t, line["errors"], domain.ErrRateLimited.Error())
}

func TestBumpIsRateLimited(t *testing.T) {
	feeds := &stubFeeds{}
	r := newTestRouter(feeds, ratelimit.New(1, time.Minute))
	hdr := map[string]string{"X-Forwarded-For": "198.51.100.7"}

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/cache/bump", hdr).Code)
	rec := do(r, http.MethodPost, "/admin/cache/bump", hdr)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, feeds.bumped)
}

func TestBumpAndOperationalRoutes(t *testing.T) {
	feeds := &stubFeeds{}
	r := newTestRouter(feeds, nil)

	rec := do(r, http.MethodPost, "/admin/cache/bump", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":2}`, rec.Body.String())
	assert.Equal(t, 1, feeds.bumped)

	metricsRec := do(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "feedpulse_http_requests_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	rec := do(newTestRouter(&stubFeeds{}, nil), http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestClientKey(t *testing.T) {
	cases := map[string]string{
		"":                   "unknown",
		"1.1.1.1":            "1.1.1.1",
		" 2.2.2.2 , 3.3.3.3": "2.2.2.2",
		",4.4.4.4":           "unknown",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("X-Forwarded-For", header)
		}
		assert.Equal(t, want, clientKey(req), "header %q", header)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "0m ago", formatTimeAgo(now.Add(30*time.Second), now))
	assert.Equal(t, "59m ago", formatTimeAgo(now.Add(-59*time.Minute), now))
	assert.Equal(t, "23h ago", formatTimeAgo(now.Add(-23*time.Hour-59*time.Minute), now))
	assert.Equal(t, "2d ago", formatTimeAgo(now.Add(-50*time.Hour), now))
	assert.Equal(t, "", formatTimeAgo(time.Time{}, now))
}
