package searchtools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// ddgServer serves a canned Instant Answer response and records the
// queries it receives.
func ddgServer(t *testing.T, body string, queries *[]string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if queries != nil {
			q, _ := url.QueryUnescape(r.URL.Query().Get("q"))
			*queries = append(*queries, q)
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL})
}

const sampleResponse = `{
	"Heading": "Home Assistant",
	"AbstractText": "Open source home automation that puts local control first.",
	"AbstractURL": "https://www.home-assistant.io/",
	"RelatedTopics": [
		{"FirstURL": "https://www.home-assistant.io/integrations/light/", "Text": "Light - Control and monitor lights."},
		{"FirstURL": "https://www.home-assistant.io/docs/automation/", "Text": "Automations - Trigger actions on events."}
	]
}`

func TestWebSearch_FormatsResults(t *testing.T) {
	var queries []string
	tool := &webSearchTool{client: ddgServer(t, sampleResponse, &queries)}

	result, err := tool.Execute(context.Background(), map[string]any{"query": "home assistant lights"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result, "Search results for: home assistant lights\n") {
		t.Errorf("header missing: %q", result)
	}
	if !strings.Contains(result, "1. **Home Assistant**") {
		t.Errorf("abstract should be the first result: %q", result)
	}
	if !strings.Contains(result, "URL: https://www.home-assistant.io/") {
		t.Errorf("url line missing: %q", result)
	}
	if !strings.Contains(result, "2. **Light**") {
		t.Errorf("related topic missing: %q", result)
	}
	if len(queries) != 1 || queries[0] != "home assistant lights" {
		t.Errorf("queries = %v", queries)
	}
}

func TestWebSearch_SiteFilter(t *testing.T) {
	var queries []string
	tool := &webSearchTool{client: ddgServer(t, sampleResponse, &queries)}

	if _, err := tool.Execute(context.Background(),
		map[string]any{"query": "mqtt", "site": "docs"}); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 1 || queries[0] != "site:home-assistant.io mqtt" {
		t.Errorf("queries = %v", queries)
	}
}

func TestWebSearch_NoResults(t *testing.T) {
	tool := &webSearchTool{client: ddgServer(t, `{}`, nil)}
	result, err := tool.Execute(context.Background(), map[string]any{"query": "zxqv"})
	if err != nil {
		t.Fatal(err)
	}
	if result != "No results found for: zxqv" {
		t.Errorf("result = %q", result)
	}
}

func TestWebSearch_BackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	tool := &webSearchTool{client: NewClient(Config{BaseURL: server.URL})}

	result, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result, "Search failed: ") {
		t.Errorf("result = %q", result)
	}
}

func TestDocsSearch(t *testing.T) {
	var queries []string
	tool := &haDocsSearchTool{client: ddgServer(t, sampleResponse, &queries)}

	result, err := tool.Execute(context.Background(), map[string]any{"query": "zigbee"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result, "Home Assistant Documentation Results:\n") {
		t.Errorf("header missing: %q", result)
	}
	if queries[0] != "site:home-assistant.io zigbee" {
		t.Errorf("queries = %v", queries)
	}

	empty := &haDocsSearchTool{client: ddgServer(t, `{}`, nil)}
	result, _ = empty.Execute(context.Background(), map[string]any{"query": "zigbee"})
	if result != "No documentation found for: zigbee" {
		t.Errorf("result = %q", result)
	}
}

func TestHACSSearch(t *testing.T) {
	var queries []string
	tool := &hacsSearchTool{client: ddgServer(t, sampleResponse, &queries)}

	result, err := tool.Execute(context.Background(),
		map[string]any{"query": "mushroom cards", "component_type": "plugin"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result, "HACS Component Search Results for: mushroom cards\n") {
		t.Errorf("header missing: %q", result)
	}
	if !strings.Contains(result, "Note: To install HACS components") {
		t.Errorf("install note missing: %q", result)
	}
	if queries[0] != "site:github.com HACS lovelace card mushroom cards Home Assistant" {
		t.Errorf("queries = %v", queries)
	}

	// Unknown or absent component_type searches without a type term.
	tool.Execute(context.Background(), map[string]any{"query": "themes"})
	if queries[1] != "site:github.com HACS themes Home Assistant" {
		t.Errorf("queries = %v", queries)
	}
}

func TestSearch_TruncatesLongSnippets(t *testing.T) {
	long := strings.Repeat("x", 400)
	body := `{"Heading": "Long", "AbstractText": "` + long + `", "AbstractURL": "https://example.org/"}`
	tool := &webSearchTool{client: ddgServer(t, body, nil)}

	result, err := tool.Execute(context.Background(), map[string]any{"query": "long"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, strings.Repeat("x", 297)+"...") {
		t.Error("snippet should be truncated at 300 characters")
	}
	if strings.Contains(result, strings.Repeat("x", 298)) {
		t.Error("snippet exceeds the cap")
	}
}

func TestAll_ToolNames(t *testing.T) {
	client := NewClient(Config{})
	var names []string
	for _, tool := range All(client) {
		names = append(names, tool.Name())
	}
	want := []string{"web_search", "search_ha_docs", "search_hacs"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
