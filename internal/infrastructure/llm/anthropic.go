package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/ports"
)

const defaultAnthropicModel = "claude-haiku-4-5"

// AnthropicClient implements ports.Summarizer with the Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	temperature  float64
}

var _ ports.Summarizer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration. SDK retries are
// disabled; the feed service's timeout and breaker decide what happens on failure.
func NewAnthropicClient(cfg config.SummarizerConfig, httpClient *http.Client) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
	}
}

// Summarize asks the model for a briefing over the ranked posts.
func (c *AnthropicClient) Summarize(ctx context.Context, feed string, items []domain.RankedItem, budget domain.SummaryBudget) (string, error) {
	maxTokens := budget.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(c.systemPrompt)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(feed, items, budget))),
		},
	}
	if c.temperature > 0 {
		// Messages API caps temperature at 1.
		params.Temperature = anthropic.Float(min(c.temperature, 1))
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic request: %w", domain.ErrSummarizerUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return cleanSummary(sb.String())
}
