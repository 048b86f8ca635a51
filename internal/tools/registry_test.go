package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/ratelimit"
)

type stubTool struct {
	name        string
	description string
	schema      string
	execute     func(ctx context.Context, args map[string]any) (string, error)
}

func (t *stubTool) Name() string            { return t.name }
func (t *stubTool) Description() string     { return t.description }
func (t *stubTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }
func (t *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.execute(ctx, args)
}

const anySchema = `{"type": "object"}`

type callRecord struct {
	name       string
	result     string
	durationMs int64
	success    bool
	err        error
}

// recorder collects execution-callback invocations.
type recorder struct {
	mu    sync.Mutex
	calls []callRecord
}

func (r *recorder) callback() ExecutionCallback {
	return func(name string, args map[string]any, result string, durationMs int64, success bool, execErr error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, callRecord{name, result, durationMs, success, execErr})
	}
}

func (r *recorder) take(t *testing.T) callRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", len(r.calls))
	}
	call := r.calls[0]
	r.calls = nil
	return call
}

func TestRegistry_RegisterAndDescribe(t *testing.T) {
	registry := NewRegistry(Config{})
	registry.Register(&stubTool{name: "get_entities", description: "List entities", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "ok", nil }})
	registry.Register(&stubTool{name: "call_service", description: "Call a service", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "ok", nil }})

	if !registry.Has("get_entities") || registry.Has("nope") {
		t.Error("Has is wrong")
	}
	if names := registry.Names(); len(names) != 2 || names[0] != "call_service" {
		t.Errorf("names = %v", names)
	}
	descriptors := registry.Descriptors()
	if len(descriptors) != 2 || descriptors[0].Name != "call_service" {
		t.Errorf("descriptors = %+v", descriptors)
	}

	// Re-registering the same name overwrites.
	registry.Register(&stubTool{name: "get_entities", description: "v2", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "v2", nil }})
	if got := registry.Execute(context.Background(), "get_entities", nil); got != "v2" {
		t.Errorf("overwritten tool result = %q", got)
	}
	if len(registry.Names()) != 2 {
		t.Error("overwrite must not grow the registry")
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	rec := &recorder{}
	registry := NewRegistry(Config{OnExecution: rec.callback()})

	result := registry.Execute(context.Background(), "teleport", nil)
	if result != "Error: Unknown tool 'teleport'" {
		t.Errorf("result = %q", result)
	}
	call := rec.take(t)
	if call.success {
		t.Error("unknown tool must not count as success")
	}
}

func TestRegistry_ModeGate(t *testing.T) {
	rec := &recorder{}
	modes := mode.NewManager(mode.Config{InitialMode: mode.ModeChat})
	registry := NewRegistry(Config{Modes: modes, OnExecution: rec.callback()})
	registry.Register(&stubTool{name: "call_service", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "Service called", nil }})

	result := registry.Execute(context.Background(), "call_service", nil)
	if !strings.HasPrefix(result, "Error: I'm in Chat mode") {
		t.Errorf("result = %q", result)
	}
	if call := rec.take(t); call.success {
		t.Error("denial must report failure")
	}

	if _, err := modes.Set(mode.ModeNormal); err != nil {
		t.Fatal(err)
	}
	if result := registry.Execute(context.Background(), "call_service", nil); result != "Service called" {
		t.Errorf("result after mode switch = %q", result)
	}
	if call := rec.take(t); !call.success {
		t.Error("successful execution must report success")
	}
}

func TestRegistry_RateLimit(t *testing.T) {
	now := time.Now()
	limits := ratelimit.NewLimiter(ratelimit.Config{
		DeletionsPerHour: 1,
		Enabled:          true,
		Now:              func() time.Time { return now },
	})
	registry := NewRegistry(Config{Limits: limits})
	registry.Register(&stubTool{name: "delete_automation", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "Deleted", nil }})

	if result := registry.Execute(context.Background(), "delete_automation", nil); result != "Deleted" {
		t.Fatalf("first delete = %q", result)
	}
	second := registry.Execute(context.Background(), "delete_automation", nil)
	if !strings.Contains(second, "Rate limit exceeded: 1/1 deletions") {
		t.Errorf("second delete = %q", second)
	}
}

func TestRegistry_FailedExecutionDoesNotConsumeBudget(t *testing.T) {
	limits := ratelimit.NewLimiter(ratelimit.Config{ModificationsPerHour: 1, Enabled: true})
	registry := NewRegistry(Config{Limits: limits})
	registry.Register(&stubTool{name: "call_service", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) {
			return "Error: service unavailable", nil
		}})

	registry.Execute(context.Background(), "call_service", nil)
	if status := limits.Status(); status.ModificationsUsed != 0 {
		t.Errorf("failed call consumed budget: %+v", status)
	}
}

func TestRegistry_PanicCapture(t *testing.T) {
	rec := &recorder{}
	registry := NewRegistry(Config{OnExecution: rec.callback()})
	registry.Register(&stubTool{name: "get_entities", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { panic("boom") }})

	result := registry.Execute(context.Background(), "get_entities", nil)
	if result != "Error executing get_entities: boom" {
		t.Errorf("result = %q", result)
	}
	call := rec.take(t)
	if call.success || call.err == nil {
		t.Errorf("panic call = %+v", call)
	}
}

func TestRegistry_SchemaValidation(t *testing.T) {
	registry := NewRegistry(Config{})
	registry.Register(&stubTool{
		name: "get_entity_state",
		schema: `{
			"type": "object",
			"properties": {"entity_id": {"type": "string"}},
			"required": ["entity_id"]
		}`,
		execute: func(_ context.Context, args map[string]any) (string, error) {
			return "state of " + args["entity_id"].(string), nil
		},
	})

	bad := registry.Execute(context.Background(), "get_entity_state", map[string]any{})
	if !strings.HasPrefix(bad, "Error: Invalid arguments for 'get_entity_state'") {
		t.Errorf("missing required arg = %q", bad)
	}

	good := registry.Execute(context.Background(), "get_entity_state",
		map[string]any{"entity_id": "light.bedroom"})
	if good != "state of light.bedroom" {
		t.Errorf("valid args = %q", good)
	}
}

func TestRegistry_CallbackPanicIsSwallowed(t *testing.T) {
	registry := NewRegistry(Config{
		OnExecution: func(string, map[string]any, string, int64, bool, error) {
			panic("callback broke")
		},
	})
	registry.Register(&stubTool{name: "get_entities", schema: anySchema,
		execute: func(context.Context, map[string]any) (string, error) { return "ok", nil }})

	if result := registry.Execute(context.Background(), "get_entities", nil); result != "ok" {
		t.Errorf("callback panic leaked into result: %q", result)
	}
}
