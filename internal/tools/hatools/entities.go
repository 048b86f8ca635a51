package hatools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/munin-ai/munin/internal/homeassistant"
)

// entityListLimit caps the entities rendered by get_entities.
const entityListLimit = 50

type getEntitiesTool struct {
	client *homeassistant.Client
}

func (t *getEntitiesTool) Name() string { return "get_entities" }

func (t *getEntitiesTool) Description() string {
	return "List entities in Home Assistant. Can filter by domain (e.g., 'light', 'automation', 'switch'). " +
		"Returns entity IDs, states, and friendly names."
}

func (t *getEntitiesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"domain": {
				"type": "string",
				"description": "Filter by domain (e.g., 'light', 'automation', 'switch', 'sensor'). Leave empty for all entities."
			},
			"search": {
				"type": "string",
				"description": "Search term to filter entity IDs or friendly names."
			}
		},
		"required": []
	}`)
}

func (t *getEntitiesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	domain := strings.ToLower(stringArg(args, "domain"))
	search := strings.ToLower(stringArg(args, "search"))

	states, err := t.client.ListStates(ctx)
	if err != nil {
		return toolError("getting entities", err), nil
	}

	var matched []homeassistant.EntityState
	for _, state := range states {
		if domain != "" && !strings.HasPrefix(state.EntityID, domain+".") {
			continue
		}
		if !matchesSearch(state, search) {
			continue
		}
		matched = append(matched, state)
	}
	if len(matched) == 0 {
		return "No entities found matching the criteria.", nil
	}

	var lines []string
	for _, state := range matched {
		if len(lines) == entityListLimit {
			break
		}
		namePart := ""
		if friendly := state.FriendlyName(); friendly != "" {
			namePart = fmt.Sprintf(" (%s)", friendly)
		}
		lines = append(lines, fmt.Sprintf("- %s%s: %s", state.EntityID, namePart, state.State))
	}

	output := fmt.Sprintf("Found %d entities", len(matched))
	if len(matched) > entityListLimit {
		output += fmt.Sprintf(" (showing first %d)", entityListLimit)
	}
	return output + ":\n" + strings.Join(lines, "\n"), nil
}

type getEntityStateTool struct {
	client *homeassistant.Client
}

func (t *getEntityStateTool) Name() string { return "get_entity_state" }

func (t *getEntityStateTool) Description() string {
	return "Get the current state and attributes of a specific Home Assistant entity. " +
		"Use this to check the detailed state of lights, sensors, automations, etc."
}

func (t *getEntityStateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"entity_id": {
				"type": "string",
				"description": "The entity ID (e.g., 'light.bedroom', 'automation.motion_lights')."
			}
		},
		"required": ["entity_id"]
	}`)
}

func (t *getEntityStateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	entityID := stringArg(args, "entity_id")
	if entityID == "" {
		return "Error: entity_id is required.", nil
	}

	state, err := t.client.GetState(ctx, entityID)
	if err != nil {
		return toolError("getting entity state", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s\n", state.EntityID)
	fmt.Fprintf(&b, "State: %s\n", state.State)
	fmt.Fprintf(&b, "Last Changed: %s\n", state.LastChanged)
	if len(state.Attributes) > 0 {
		b.WriteString("Attributes:\n")
		for key, value := range state.Attributes {
			fmt.Fprintf(&b, "  %s: %v\n", key, value)
		}
	}
	return b.String(), nil
}

type callServiceTool struct {
	client *homeassistant.Client
}

func (t *callServiceTool) Name() string { return "call_service" }

func (t *callServiceTool) Description() string {
	return "Call a Home Assistant service. Use this to control devices, trigger automations, etc. " +
		"Examples: turn on lights, run scripts, enable/disable automations."
}

func (t *callServiceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"domain": {
				"type": "string",
				"description": "Service domain (e.g., 'light', 'automation', 'switch', 'script')."
			},
			"service": {
				"type": "string",
				"description": "Service name (e.g., 'turn_on', 'turn_off', 'toggle', 'trigger')."
			},
			"entity_id": {
				"type": "string",
				"description": "Target entity ID (e.g., 'light.bedroom')."
			},
			"service_data": {
				"type": "object",
				"description": "Additional service data (e.g., {\"brightness\": 255} for lights)."
			}
		},
		"required": ["domain", "service"]
	}`)
}

func (t *callServiceTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	domain := stringArg(args, "domain")
	service := stringArg(args, "service")
	if domain == "" || service == "" {
		return "Error: domain and service are required.", nil
	}

	var target map[string]any
	if entityID := stringArg(args, "entity_id"); entityID != "" {
		target = map[string]any{"entity_id": entityID}
	}

	states, err := t.client.CallService(ctx, domain, service, mapArg(args, "service_data"), target)
	if err != nil {
		return toolError("calling service", err), nil
	}

	if len(states) == 0 {
		return fmt.Sprintf("Service %s.%s called successfully.", domain, service), nil
	}
	lines := make([]string, 0, len(states))
	for _, state := range states {
		lines = append(lines, fmt.Sprintf("%s: %s", state.EntityID, state.State))
	}
	return fmt.Sprintf("Service %s.%s called successfully. Affected entities:\n%s",
		domain, service, strings.Join(lines, "\n")), nil
}
