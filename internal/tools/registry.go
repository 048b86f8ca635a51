// Package tools owns the set of callable tools and guards every
// invocation: mode gating, rate limiting, argument validation, timing,
// panic capture, and audit notification all happen in one place.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/ratelimit"
	"github.com/munin-ai/munin/pkg/models"
)

// Tool is one callable capability exposed to the LLM.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON-Schema object describing the arguments.
	Schema() json.RawMessage
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ExecutionCallback observes every Execute call, exactly once per call.
// Callback failures are logged and swallowed.
type ExecutionCallback func(name string, args map[string]any, result string, durationMs int64, success bool, execErr error)

// Config parameterizes a Registry. Modes and Limits are optional; when
// nil the corresponding guard is skipped.
type Config struct {
	Modes       *mode.Manager
	Limits      *ratelimit.Limiter
	OnExecution ExecutionCallback
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds tools by name and is the single chokepoint for
// execution. Registration happens at startup; Execute is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]registered
	modes       *mode.Manager
	limits      *ratelimit.Limiter
	onExecution ExecutionCallback
	log         *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		tools:       make(map[string]registered),
		modes:       cfg.Modes,
		limits:      cfg.Limits,
		onExecution: cfg.OnExecution,
		log:         slog.With("component", "tools"),
	}
}

// Register adds a tool. A name collision overwrites the prior entry with
// a warning. The tool's schema is compiled eagerly; a schema that does
// not compile disables argument validation for that tool only.
func (r *Registry) Register(tool Tool) {
	name := tool.Name()

	var schema *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		compiled, err := jsonschema.CompileString("tool_"+name, string(raw))
		if err != nil {
			r.log.Warn("tool schema does not compile, skipping argument validation",
				"tool", name, "error", err)
		} else {
			schema = compiled
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		r.log.Warn("tool already registered, overwriting", "tool", name)
	}
	r.tools[name] = registered{tool: tool, schema: schema}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.tool, ok
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the tool descriptors to advertise to the LLM, in
// name order.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptors := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, entry := range r.tools {
		descriptors = append(descriptors, models.ToolDescriptor{
			Name:        entry.tool.Name(),
			Description: entry.tool.Description(),
			Parameters:  entry.tool.Schema(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}

// Execute runs the named tool through the full guard chain and returns
// the operator-facing result string. Failures of any kind come back as
// strings prefixed "Error:", never as a raised error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	start := time.Now()

	finish := func(result string, execErr error) string {
		durationMs := time.Since(start).Milliseconds()
		success := execErr == nil && !strings.HasPrefix(result, "Error:")
		if success && execErr == nil {
			if op, limited := ratelimit.OperationFor(mode.CategoryFor(name)); limited && r.limits != nil {
				r.limits.Record(op)
			}
		}
		r.notify(name, args, result, durationMs, success, execErr)
		return result
	}

	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return finish(fmt.Sprintf("Error: Unknown tool '%s'", name), nil)
	}

	if r.modes != nil {
		if allowed, reason := r.modes.CheckToolAllowed(name); !allowed {
			return finish("Error: "+reason, nil)
		}
	}

	if r.limits != nil && r.limits.Enabled() {
		if op, limited := ratelimit.OperationFor(mode.CategoryFor(name)); limited {
			if allowed, reason := r.limits.CheckAllowed(op); !allowed {
				return finish("Error: "+reason, nil)
			}
		}
	}

	if entry.schema != nil {
		payload := args
		if payload == nil {
			payload = map[string]any{}
		}
		if err := entry.schema.Validate(normalizeForValidation(payload)); err != nil {
			return finish(fmt.Sprintf("Error: Invalid arguments for '%s': %v", name, err), nil)
		}
	}

	result, execErr := runTool(ctx, entry.tool, args)
	if execErr != nil {
		return finish(fmt.Sprintf("Error executing %s: %s", name, execErr), execErr)
	}
	return finish(result, nil)
}

// runTool invokes the tool and converts a panic into an error.
func runTool(ctx context.Context, tool Tool, args map[string]any) (result string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%v", recovered)
		}
	}()
	return tool.Execute(ctx, args)
}

func (r *Registry) notify(name string, args map[string]any, result string, durationMs int64, success bool, execErr error) {
	if r.onExecution == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			r.log.Error("execution callback panicked", "tool", name, "panic", recovered)
		}
	}()
	r.onExecution(name, args, result, durationMs, success, execErr)
}

// normalizeForValidation round-trips the arguments through JSON so the
// validator sees the generic types it expects (float64 numbers, plain
// maps). Values that do not marshal are passed through unchanged.
func normalizeForValidation(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return args
	}
	return payload
}
