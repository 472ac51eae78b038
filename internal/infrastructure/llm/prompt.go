package llm

import (
	"fmt"
	"strings"

	"FeedPulse/internal/domain"
	"FeedPulse/internal/extractor"
)

const (
	maxPromptBody       = 200
	defaultSystemPrompt = "You brief readers on what an online community is discussing right now."
)

// buildPrompt renders the ranked items into the user message. Items beyond
// budget.MaxItems are left out and bodies are cut to a short excerpt.
func buildPrompt(feed string, items []domain.RankedItem, budget domain.SummaryBudget) string {
	if budget.MaxItems > 0 && len(items) > budget.MaxItems {
		items = items[:budget.MaxItems]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "These are the %d most active posts on %s right now.\n", len(items), feed)
	sb.WriteString("Write a short, lively briefing (3-5 sentences) on the main themes and standout posts. ")
	sb.WriteString("Mention authors by name where it helps. No lists, no headings.\n\n")

	for _, it := range items {
		fmt.Fprintf(&sb, "%d. %s", it.Rank+1, oneLine(it.Title))
		if it.Author != "" {
			fmt.Fprintf(&sb, " (by %s", it.Author)
			if it.Group != "" && it.Group != feed {
				fmt.Fprintf(&sb, " in %s", it.Group)
			}
			sb.WriteString(")")
		}
		fmt.Fprintf(&sb, " [%.0f upvotes, %d comments]\n", it.Engagement, it.Comments)
		if body := oneLine(it.Body); body != "" && body != oneLine(it.Title) {
			fmt.Fprintf(&sb, "   %s\n", extractor.Truncate(body, maxPromptBody))
		}
	}
	return sb.String()
}

func systemPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanSummary trims the model output and reports whether anything is left.
func cleanSummary(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrSummarizerUnavailable)
	}
	return text, nil
}
