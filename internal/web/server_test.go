package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/ratelimit"
	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/pkg/models"
)

func testServer(t *testing.T, chat ChatFunc) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	if chat == nil {
		chat = func(ctx context.Context, text string, user models.UserContext) string {
			return "echo: " + text
		}
	}
	return NewServer(Config{
		Chat:     chat,
		Modes:    mode.NewManager(mode.Config{}),
		Limits:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		Store:    st,
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
	}), st
}

func getJSON(t *testing.T, handler http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, nil)
	var body map[string]any
	rec := getJSON(t, s.Handler(), "/health", &body)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("code = %d, body = %v", rec.Code, body)
	}
}

func TestStatus(t *testing.T) {
	s, _ := testServer(t, nil)
	var body map[string]any
	rec := getJSON(t, s.Handler(), "/api/status", &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["mode"] != "normal" || body["provider"] != "anthropic" {
		t.Errorf("body = %v", body)
	}
	limits, ok := body["rate_limits"].(map[string]any)
	if !ok || limits["deletions_limit"] != float64(5) {
		t.Errorf("rate_limits = %v", body["rate_limits"])
	}
}

func TestChat(t *testing.T) {
	var seen []models.UserContext
	s, _ := testServer(t, func(ctx context.Context, text string, user models.UserContext) string {
		seen = append(seen, user)
		return "echo: " + text
	})

	payload := bytes.NewBufferString(`{"message": "turn on the lights"}`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "echo: turn on the lights" {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.SessionID == "" {
		t.Error("session id should be generated")
	}
	if len(seen) != 1 || seen[0].Source != models.SourceWeb {
		t.Errorf("user = %+v", seen)
	}
	if seen[0].UserID != "web:"+resp.SessionID {
		t.Errorf("user id = %q, session = %q", seen[0].UserID, resp.SessionID)
	}

	// A provided session id is echoed back unchanged.
	payload = bytes.NewBufferString(`{"message": "again", "session_id": "abc"}`)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", payload))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "abc" {
		t.Errorf("session id = %q", resp.SessionID)
	}
}

func TestChat_Validation(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message code = %d", rec.Code)
	}
}

func TestAudit(t *testing.T) {
	s, st := testServer(t, nil)
	ctx := context.Background()
	st.Audit.LogMessage(ctx, "telegram", models.MessageTypeUser, "turn on kitchen light", "42", "", nil)
	st.Audit.LogMessage(ctx, "telegram", models.MessageTypeAssistant, "Done.", "42", "", nil)
	st.Audit.LogMessage(ctx, "web", models.MessageTypeUser, "status report", "web:abc", "", nil)

	var body struct {
		Entries []models.AuditEntry `json:"entries"`
		Count   int                 `json:"count"`
	}
	getJSON(t, s.Handler(), "/api/audit", &body)
	if body.Count != 3 {
		t.Errorf("count = %d", body.Count)
	}
	if body.Entries[0].Content != "status report" {
		t.Errorf("newest first, got %q", body.Entries[0].Content)
	}

	getJSON(t, s.Handler(), "/api/audit?source=web", &body)
	if body.Count != 1 || body.Entries[0].Source != "web" {
		t.Errorf("source filter: %+v", body)
	}

	getJSON(t, s.Handler(), "/api/audit?q=kitchen", &body)
	if body.Count != 1 || !strings.Contains(body.Entries[0].Content, "kitchen") {
		t.Errorf("search: %+v", body)
	}

	getJSON(t, s.Handler(), "/api/audit?limit=2", &body)
	if body.Count != 2 {
		t.Errorf("limit: count = %d", body.Count)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)
	s.cfg.Metrics.ObserveToolExecution("call_service", 0.2, true)
	s.cfg.Metrics.ObserveMessage("telegram", "inbound")
	s.cfg.Metrics.ObserveLLMRequest("anthropic", "claude-sonnet-4-20250514",
		models.Usage{InputTokens: 100, OutputTokens: 40}, true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	text, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(text), "munin_tool_executions_total") {
		t.Error("tool execution counter missing from exposition")
	}
	if !strings.Contains(string(text), `munin_messages_total{direction="inbound",source="telegram"} 1`) {
		t.Error("message counter missing from exposition")
	}
	if !strings.Contains(string(text), `munin_llm_requests_total{model="claude-sonnet-4-20250514",provider="anthropic",status="success"} 1`) {
		t.Error("llm request counter missing from exposition")
	}
	if !strings.Contains(string(text), `munin_llm_tokens_total{model="claude-sonnet-4-20250514",provider="anthropic",type="prompt"} 100`) {
		t.Error("llm token counter missing from exposition")
	}
}
