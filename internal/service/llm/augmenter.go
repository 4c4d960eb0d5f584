package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// Augmenter injects web search results into the final user message.
type Augmenter struct {
	searcher   domainllm.Searcher
	serverKey  string
	maxResults int
	logger     *slog.Logger
}

// NewAugmenter creates an augmenter. serverKey may be empty, in which case
// only requests that carry their own key are searched.
func NewAugmenter(searcher domainllm.Searcher, serverKey string, maxResults int, logger *slog.Logger) *Augmenter {
	return &Augmenter{
		searcher:   searcher,
		serverKey:  serverKey,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Augment searches for the last user message and returns a rewritten copy of
// messages together with the results. Without a key, or when the search
// fails or finds nothing, messages are returned unchanged with nil results.
func (a *Augmenter) Augment(ctx context.Context, messages []domainllm.PromptMessage, userKey string) ([]domainllm.PromptMessage, []models.SearchResult) {
	if a == nil || a.searcher == nil {
		return messages, nil
	}
	key := userKey
	if key == "" {
		key = a.serverKey
	}
	if key == "" {
		return messages, nil
	}

	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			last = i
			break
		}
	}
	if last < 0 || strings.TrimSpace(messages[last].Content) == "" {
		return messages, nil
	}

	query := messages[last].Content
	results, err := a.searcher.Search(ctx, query, key, a.maxResults)
	if err != nil {
		a.logger.Warn("web search failed, continuing without results", "error", err)
		return messages, nil
	}
	if len(results) == 0 {
		return messages, nil
	}

	a.logger.Debug("web search results injected", "count", len(results))

	out := make([]domainllm.PromptMessage, len(messages))
	copy(out, messages)
	out[last].Content = SearchContext(results, query)
	return out, results
}

// SearchContext renders numbered results followed by the original question.
func SearchContext(results []models.SearchResult, question string) string {
	var b strings.Builder
	b.WriteString("Use the following web search results to answer the question. Cite sources by their number when you use them.\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
