// Package searchtools provides web research tools for Home Assistant
// topics: general search, official documentation, and HACS components,
// backed by DuckDuckGo's Instant Answer API.
package searchtools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/munin-ai/munin/internal/tools"
)

const (
	defaultBaseURL    = "https://api.duckduckgo.com"
	defaultMaxResults = 5

	userAgent = "Mozilla/5.0 (compatible; MuninBot/1.0)"
)

// result is one search hit.
type result struct {
	Title   string
	URL     string
	Snippet string
}

// Config parameterizes a Client.
type Config struct {
	// BaseURL overrides the search endpoint for tests.
	BaseURL    string
	HTTPClient *http.Client
	MaxResults int
}

// Client queries the search backend.
type Client struct {
	baseURL    string
	http       *http.Client
	maxResults int
	log        *slog.Logger
}

// NewClient creates a search client, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       cfg.HTTPClient,
		maxResults: cfg.MaxResults,
		log:        slog.With("component", "searchtools"),
	}
}

// All returns the search tools wired to the client.
func All(client *Client) []tools.Tool {
	return []tools.Tool{
		&webSearchTool{client: client},
		&haDocsSearchTool{client: client},
		&hacsSearchTool{client: client},
	}
}

// search runs one query against the Instant Answer API. The abstract, if
// present, becomes the first result; related topics fill the rest.
func (c *Client) search(ctx context.Context, query string) ([]result, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	var results []result
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, result{
			Title:   parsed.Heading,
			URL:     parsed.AbstractURL,
			Snippet: parsed.AbstractText,
		})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= c.maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title, snippet := splitTopicText(topic.Text)
		results = append(results, result{Title: title, URL: topic.FirstURL, Snippet: snippet})
	}
	return results, nil
}

// splitTopicText separates a related topic's "Title - description" text.
func splitTopicText(text string) (string, string) {
	if title, snippet, ok := strings.Cut(text, " - "); ok {
		return title, snippet
	}
	return text, text
}

// truncateSnippet caps a snippet at max characters.
func truncateSnippet(snippet string, max int) string {
	if len(snippet) > max {
		return snippet[:max-3] + "..."
	}
	return snippet
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}
