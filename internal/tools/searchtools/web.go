package searchtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// siteFilters maps the site shorthand of web_search to a search operator.
var siteFilters = map[string]string{
	"docs":   "site:home-assistant.io",
	"forum":  "site:community.home-assistant.io",
	"hacs":   "site:hacs.xyz OR site:github.com/hacs",
	"github": "site:github.com",
}

type webSearchTool struct {
	client *Client
}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) Description() string {
	return "Search the web for Home Assistant documentation, community discussions, " +
		"HACS components, and troubleshooting information. Use this when you need " +
		"to find solutions, best practices, or learn about specific integrations."
}

func (t *webSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query. Be specific and include 'Home Assistant' if searching for HA-related topics."
			},
			"site": {
				"type": "string",
				"description": "Optional: Limit search to a specific site. Options: 'docs' (home-assistant.io), 'forum' (community.home-assistant.io), 'hacs' (hacs.xyz), 'github' (github.com)",
				"enum": ["docs", "forum", "hacs", "github"]
			}
		},
		"required": ["query"]
	}`)
}

func (t *webSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Error: query is required.", nil
	}

	searchQuery := query
	if filter := siteFilters[stringArg(args, "site")]; filter != "" {
		searchQuery = filter + " " + query
	}
	t.client.log.Info("searching", "query", searchQuery)

	results, err := t.client.search(ctx, searchQuery)
	if err != nil {
		t.client.log.Warn("web search failed", "error", err)
		return fmt.Sprintf("Search failed: %v", err), nil
	}
	if len(results) == 0 {
		return "No results found for: " + query, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. **%s**\n", i+1, r.Title)
		fmt.Fprintf(&b, "   URL: %s\n", r.URL)
		fmt.Fprintf(&b, "   %s", truncateSnippet(r.Snippet, 300))
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

type haDocsSearchTool struct {
	client *Client
}

func (t *haDocsSearchTool) Name() string { return "search_ha_docs" }

func (t *haDocsSearchTool) Description() string {
	return "Search the official Home Assistant documentation. Use this to find " +
		"information about integrations, YAML configuration, automations, " +
		"and other Home Assistant features."
}

func (t *haDocsSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What to search for in the documentation."
			}
		},
		"required": ["query"]
	}`)
}

func (t *haDocsSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Error: query is required.", nil
	}

	results, err := t.client.search(ctx, "site:home-assistant.io "+query)
	if err != nil {
		t.client.log.Warn("docs search failed", "error", err)
		return fmt.Sprintf("Search failed: %v", err), nil
	}
	if len(results) == 0 {
		return "No documentation found for: " + query, nil
	}

	var b strings.Builder
	b.WriteString("Home Assistant Documentation Results:\n")
	writeNumberedResults(&b, results, 200)
	return b.String(), nil
}

type hacsSearchTool struct {
	client *Client
}

func (t *hacsSearchTool) Name() string { return "search_hacs" }

func (t *hacsSearchTool) Description() string {
	return "Search for HACS (Home Assistant Community Store) components, " +
		"custom integrations, and Lovelace cards. Use this to find " +
		"community-developed extensions for Home Assistant."
}

func (t *hacsSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What kind of component or card to search for."
			},
			"component_type": {
				"type": "string",
				"description": "Type of component to search for.",
				"enum": ["integration", "plugin", "theme", "any"]
			}
		},
		"required": ["query"]
	}`)
}

// hacsTypeTerms narrows a HACS search by component kind.
var hacsTypeTerms = map[string]string{
	"integration": "custom integration",
	"plugin":      "lovelace card",
	"theme":       "theme",
}

func (t *hacsSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Error: query is required.", nil
	}

	terms := []string{"site:github.com", "HACS"}
	if typeTerm := hacsTypeTerms[stringArg(args, "component_type")]; typeTerm != "" {
		terms = append(terms, typeTerm)
	}
	terms = append(terms, query, "Home Assistant")

	results, err := t.client.search(ctx, strings.Join(terms, " "))
	if err != nil {
		t.client.log.Warn("hacs search failed", "error", err)
		return fmt.Sprintf("Search failed: %v", err), nil
	}
	if len(results) == 0 {
		return "No HACS components found for: " + query, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HACS Component Search Results for: %s\n", query)
	writeNumberedResults(&b, results, 200)
	b.WriteString("\n\nNote: To install HACS components, the user must add them manually " +
		"through the HACS interface in Home Assistant.")
	return b.String(), nil
}

// writeNumberedResults renders results as numbered title/URL/snippet
// blocks with the given snippet cap.
func writeNumberedResults(b *strings.Builder, results []result, snippetMax int) {
	for i, r := range results {
		fmt.Fprintf(b, "\n%d. %s\n", i+1, r.Title)
		fmt.Fprintf(b, "   %s\n", r.URL)
		fmt.Fprintf(b, "   %s", truncateSnippet(r.Snippet, snippetMax))
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}
}
