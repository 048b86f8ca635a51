package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_URLResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			"supervisor proxy",
			ClientConfig{SupervisorToken: "stoken"},
			"http://supervisor/core/api",
		},
		{
			"explicit URL wins over supervisor token",
			ClientConfig{URL: "http://ha.local:8123", Token: "t", SupervisorToken: "stoken"},
			"http://ha.local:8123/api",
		},
		{
			"explicit URL trailing slash",
			ClientConfig{URL: "http://ha.local:8123/", Token: "t"},
			"http://ha.local:8123/api",
		},
		{
			"default direct",
			ClientConfig{Token: "t"},
			"http://homeassistant.local:8123/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.cfg)
			if c.BaseURL() != tt.want {
				t.Errorf("base = %q, want %q", c.BaseURL(), tt.want)
			}
		})
	}
}

func TestClient_AuthHeaderAndAPIError(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path == "/api/states/light.missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("entity not found"))
			return
		}
		json.NewEncoder(w).Encode(EntityState{EntityID: "light.bedroom", State: "on"})
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, Token: "secret"})

	state, err := c.GetState(context.Background(), "light.bedroom")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if state.EntityID != "light.bedroom" || state.State != "on" {
		t.Errorf("state = %+v", state)
	}

	_, err = c.GetState(context.Background(), "light.missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Body != "entity not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_CallServiceMergesTargetInline(t *testing.T) {
	var gotBody map[string]any
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode([]EntityState{{EntityID: "light.bedroom", State: "on"}})
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, Token: "t"})
	states, err := c.CallService(context.Background(), "light", "turn_on",
		map[string]any{"brightness": 255},
		map[string]any{"entity_id": "light.bedroom"},
	)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	// Target fields sit at the top level of the body, not under "target".
	if gotBody["entity_id"] != "light.bedroom" {
		t.Errorf("entity_id not merged inline: %v", gotBody)
	}
	if _, nested := gotBody["target"]; nested {
		t.Error("body must not nest a target object")
	}
	if gotBody["brightness"] != float64(255) {
		t.Errorf("brightness = %v", gotBody["brightness"])
	}
	if len(states) != 1 || states[0].EntityID != "light.bedroom" {
		t.Errorf("states = %+v", states)
	}
}

func TestClient_ListServices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"domain": "light", "services": {
				"turn_on": {"name": "Turn on", "description": "Turn on one or more lights."},
				"turn_off": {"name": "Turn off", "description": ""}
			}}
		]`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, Token: "t"})
	services, err := c.ListServices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(services["light"]) != 2 {
		t.Fatalf("light services = %d, want 2", len(services["light"]))
	}
	for _, svc := range services["light"] {
		if svc.Description == "" {
			t.Errorf("service %s should fall back to its name for the description", svc.Name)
		}
	}
}

func TestClient_ObjectConfigPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Write([]byte(`{"alias": "morning"}`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, Token: "t"})
	ctx := context.Background()

	if _, err := c.GetObjectConfig(ctx, "automation", "morning_1"); err != nil {
		t.Fatal(err)
	}
	if err := c.UpsertObjectConfig(ctx, "automation", "morning_1", map[string]any{"alias": "morning"}); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteObjectConfig(ctx, "script", "greet"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"GET /api/config/automation/config/morning_1",
		"POST /api/config/automation/config/morning_1",
		"DELETE /api/config/script/config/greet",
	}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("request %d = %q, want %q", i, paths[i], path)
		}
	}
}
