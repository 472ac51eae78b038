// Package llm holds the generative-model adapters that turn a ranked feed
// into a short briefing.
package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"FeedPulse/internal/config"
	"FeedPulse/internal/ports"
)

// New returns the configured provider, or nil when no API key is set.
// A nil summarizer means every refresh uses the fallback text.
func New(cfg config.SummarizerConfig, httpClient *http.Client) (ports.Summarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}

	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return NewGeminiClient(cfg, httpClient), nil
	case "openai":
		return NewOpenAIClient(cfg, httpClient), nil
	case "anthropic", "claude":
		return NewAnthropicClient(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q (valid: gemini, openai, anthropic)", cfg.Provider)
	}
}
