// Package hatools exposes Home Assistant capabilities as agent tools:
// entity queries, service calls, configuration-object CRUD, diagnostics,
// and entity-registry updates.
package hatools

import (
	"fmt"
	"strings"

	"github.com/munin-ai/munin/internal/homeassistant"
	"github.com/munin-ai/munin/internal/tools"
)

// All returns every Home Assistant tool wired to the given clients. The
// registry client may be nil, in which case the registry tools are
// omitted.
func All(client *homeassistant.Client, registry *homeassistant.RegistryClient) []tools.Tool {
	set := []tools.Tool{
		&getEntitiesTool{client: client},
		&getEntityStateTool{client: client},
		&callServiceTool{client: client},
		&getServicesTool{client: client},
		&getErrorLogTool{client: client},
		&getLogbookTool{client: client},
	}
	for _, class := range objectClasses {
		set = append(set, class.tools(client)...)
	}
	if registry != nil {
		set = append(set,
			&renameEntityTool{registry: registry},
			&assignEntityAreaTool{registry: registry},
		)
	}
	return set
}

// stringArg extracts a string argument, empty when absent or mistyped.
func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

// intArg extracts an integer argument with a fallback. JSON numbers
// arrive as float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// mapArg extracts an object argument, nil when absent.
func mapArg(args map[string]any, key string) map[string]any {
	value, _ := args[key].(map[string]any)
	return value
}

// toolError formats a failure the LLM can read and react to.
func toolError(action string, err error) string {
	return fmt.Sprintf("Error %s: %v", action, err)
}

// matchesSearch reports whether the entity id or friendly name contains
// the lowercased term.
func matchesSearch(state homeassistant.EntityState, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(state.EntityID), term) ||
		strings.Contains(strings.ToLower(state.FriendlyName()), term)
}
