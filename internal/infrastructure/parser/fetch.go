package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"FeedPulse/internal/domain"
)

const (
	defaultUserAgent    = "FeedPulse/1.0 (+https://github.com/feedpulse)"
	defaultFetchTimeout = 8 * time.Second
	maxPayloadBytes     = 8 << 20
)

// Fetcher performs upstream GETs with a bounded timeout and a per-host
// token bucket so concurrent refreshes of different feeds sharing a host
// stay polite.
type Fetcher struct {
	client    *http.Client
	userAgent string
	accept    string
	every     time.Duration
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// FetcherOption tunes a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent overrides the descriptive User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithThrottle limits requests per upstream host to one per interval with the given burst.
// A zero interval disables throttling.
func WithThrottle(every time.Duration, burst int) FetcherOption {
	return func(f *Fetcher) {
		f.every = every
		if burst > 0 {
			f.burst = burst
		}
	}
}

// NewFetcher wires an HTTP client; a nil client gets the default fetch timeout.
func NewFetcher(client *http.Client, accept string, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	f := &Fetcher{
		client:    client,
		userAgent: defaultUserAgent,
		accept:    accept,
		burst:     1,
		limiters:  map[string]*rate.Limiter{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches rawURL and returns the body. Transport failures map to
// domain.ErrUpstreamUnavailable and non-2xx answers to a *domain.UpstreamStatusError.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %s: %w", rawURL, err)
	}

	if lim := f.limiter(parsed.Host); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: throttle %s: %v", domain.ErrUpstreamUnavailable, parsed.Host, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.accept != "" {
		req.Header.Set("Accept", f.accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &domain.UpstreamStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	if f.every <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(f.every), f.burst)
		f.limiters[host] = lim
	}
	return lim
}
