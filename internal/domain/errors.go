package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable covers connect failures and timeouts talking to a feed upstream.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamBadStatus is returned when the upstream answers with a non-2xx status.
	ErrUpstreamBadStatus = errors.New("upstream bad status")
	// ErrParse means the payload shape was not recognised.
	ErrParse = errors.New("parse error")
	// ErrSummarizerUnavailable is soft: it is always replaced by a fallback summary.
	ErrSummarizerUnavailable = errors.New("summarizer unavailable")
	// ErrRateLimited is caller-visible and not a system fault.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnknownFeed is returned for a feed name that is not configured.
	ErrUnknownFeed = errors.New("unknown feed")
)

// UpstreamStatusError records the status code of a rejected upstream response.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match ErrUpstreamBadStatus.
func (e *UpstreamStatusError) Unwrap() error {
	return ErrUpstreamBadStatus
}
