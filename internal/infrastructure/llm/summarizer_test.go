package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
)

func sampleItems(n int) []domain.RankedItem {
	items := make([]domain.RankedItem, n)
	for i := range items {
		items[i] = domain.RankedItem{
			Item: domain.Item{
				ID:         fmt.Sprintf("p%d", i+1),
				Title:      fmt.Sprintf("Post %d", i+1),
				Body:       strings.Repeat("body ", 100),
				Author:     "agent",
				Group:      "general",
				Engagement: float64(10 * (n - i)),
				Comments:   i,
			},
			Score: float64(n - i),
			Rank:  i,
		}
	}
	return items
}

func TestBuildPromptHonorsBudget(t *testing.T) {
	prompt := buildPrompt("moltbook", sampleItems(5), domain.SummaryBudget{MaxItems: 3})

	assert.Contains(t, prompt, "3 most active posts on moltbook")
	assert.Contains(t, prompt, "1. Post 1 (by agent in general) [50 upvotes, 0 comments]")
	assert.Contains(t, prompt, "3. Post 3")
	assert.NotContains(t, prompt, "Post 4")

	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "   ") {
			assert.LessOrEqual(t, len([]rune(strings.TrimSpace(line))), maxPromptBody)
			assert.True(t, strings.HasSuffix(line, "..."))
		}
	}
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(config.SummarizerConfig{Provider: "gemini"}, nil)
	require.NoError(t, err)
	assert.Nil(t, s, "no api key means no provider")

	s, err = New(config.SummarizerConfig{Provider: "openai", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, s)

	s, err = New(config.SummarizerConfig{Provider: "Anthropic", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, s)

	s, err = New(config.SummarizerConfig{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, s)

	_, err = New(config.SummarizerConfig{Provider: "mystery", APIKey: "k"}, nil)
	require.Error(t, err)
}

func TestOpenAIClientSummarize(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Agents debate memory.  "}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.SummarizerConfig{Endpoint: srv.URL, Model: "m", APIKey: "secret", Temperature: 0.5}, srv.Client())
	summary, err := c.Summarize(context.Background(), "moltbook", sampleItems(2), domain.SummaryBudget{MaxOutputTokens: 321})

	require.NoError(t, err)
	assert.Equal(t, "Agents debate memory.", summary)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 321, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Post 2")
}

func TestOpenAIClientErrorsAreSummarizerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.SummarizerConfig{Endpoint: srv.URL, APIKey: "k"}, srv.Client())
	_, err := c.Summarize(context.Background(), "f", sampleItems(1), domain.SummaryBudget{})
	require.ErrorIs(t, err, domain.ErrSummarizerUnavailable)
	assert.Contains(t, err.Error(), "quota")
}

func TestGeminiClientSummarize(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemma-3-27b-it:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Busy day "},{"text":"on the feed."}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient(config.SummarizerConfig{Endpoint: srv.URL + "/", APIKey: "secret", Temperature: 0.85, SystemPrompt: "Be brief."}, srv.Client())
	summary, err := c.Summarize(context.Background(), "moltx", sampleItems(3), domain.SummaryBudget{MaxOutputTokens: 600})

	require.NoError(t, err)
	assert.Equal(t, "Busy day on the feed.", summary)
	assert.InDelta(t, 0.85, got.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, 600, got.GenerationConfig.MaxOutputTokens)
	require.Len(t, got.Contents, 1)
	assert.True(t, strings.HasPrefix(got.Contents[0].Parts[0].Text, "Be brief."))
}

func TestGeminiClientEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient(config.SummarizerConfig{Endpoint: srv.URL, APIKey: "k"}, srv.Client())
	_, err := c.Summarize(context.Background(), "f", sampleItems(1), domain.SummaryBudget{})
	require.ErrorIs(t, err, domain.ErrSummarizerUnavailable)
}

func TestAnthropicClientSummarize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "Agents are arguing about tooling."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient(config.SummarizerConfig{Endpoint: srv.URL, APIKey: "secret", Temperature: 0.85}, srv.Client())
	summary, err := c.Summarize(context.Background(), "moltbook", sampleItems(2), domain.SummaryBudget{MaxOutputTokens: 400})

	require.NoError(t, err)
	assert.Equal(t, "Agents are arguing about tooling.", summary)
	assert.Equal(t, "claude-haiku-4-5", got["model"])
	assert.InDelta(t, 400, got["max_tokens"], 0)
}

func TestAnthropicClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient(config.SummarizerConfig{Endpoint: srv.URL, APIKey: "k"}, srv.Client())
	_, err := c.Summarize(context.Background(), "f", sampleItems(1), domain.SummaryBudget{})
	require.ErrorIs(t, err, domain.ErrSummarizerUnavailable)
}
