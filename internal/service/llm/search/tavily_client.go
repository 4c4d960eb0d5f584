package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

const (
	// DefaultTavilyBaseURL is the default Tavily API endpoint
	DefaultTavilyBaseURL = "https://api.tavily.com/search"
	// DefaultTavilyTimeout is the default HTTP timeout for Tavily requests
	DefaultTavilyTimeout = 30 * time.Second

	maxTavilyResults = 20
)

// TavilyClient searches the web through Tavily. The API key is supplied per
// call so user keys and the server key share one client.
type TavilyClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTavilyClient creates a new Tavily search client.
func NewTavilyClient() *TavilyClient {
	return NewTavilyClientWithConfig(DefaultTavilyBaseURL, DefaultTavilyTimeout)
}

// NewTavilyClientWithConfig creates a Tavily client with custom configuration.
func NewTavilyClientWithConfig(baseURL string, timeout time.Duration) *TavilyClient {
	return &TavilyClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search implements llm.Searcher.
func (c *TavilyClient) Search(ctx context.Context, query, apiKey string, maxResults int) ([]models.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > maxTavilyResults {
		maxResults = maxTavilyResults
	}

	// Tavily expects the API key in the body, not in headers
	payload := tavilyRequest{
		APIKey:     apiKey,
		Query:      query,
		MaxResults: maxResults,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // Error ignored: response consumed

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tavilyResp tavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		if len(results) == maxResults {
			break
		}
		results = append(results, models.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}
	return results, nil
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
	Query   string         `json:"query"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
