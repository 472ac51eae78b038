package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/ports"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	defaultGeminiModel    = "gemma-3-27b-it"
)

// GeminiClient implements ports.Summarizer via the generateContent REST API.
type GeminiClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
}

var _ ports.Summarizer = (*GeminiClient)(nil)

// NewGeminiClient builds a client from configuration.
func NewGeminiClient(cfg config.SummarizerConfig, httpClient *http.Client) *GeminiClient {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{
		endpoint:     endpoint,
		model:        model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		httpClient:   httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Summarize posts the prompt to models/<model>:generateContent.
func (c *GeminiClient) Summarize(ctx context.Context, feed string, items []domain.RankedItem, budget domain.SummaryBudget) (string, error) {
	if c == nil || c.apiKey == "" {
		return "", fmt.Errorf("%w: gemini client misconfigured", domain.ErrSummarizerUnavailable)
	}

	// Gemma models reject system instructions, so the system prompt leads the user turn.
	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: systemPrompt(c.systemPrompt) + "\n\n" + buildPrompt(feed, items, budget)}},
	}}
	reqBody.GenerationConfig.Temperature = c.temperature
	reqBody.GenerationConfig.MaxOutputTokens = budget.MaxOutputTokens

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the key; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("%w: gemini request: %w", domain.ErrSummarizerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: gemini error %s: %s", domain.ErrSummarizerUnavailable, resp.Status, strings.TrimSpace(string(payload)))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %w", domain.ErrSummarizerUnavailable, err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", domain.ErrSummarizerUnavailable)
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return cleanSummary(sb.String())
}
