package hatools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/munin-ai/munin/internal/homeassistant"
)

// The entity-registry tools go over the WebSocket API; the REST surface
// does not expose renames or area assignments.

type renameEntityTool struct {
	registry *homeassistant.RegistryClient
}

func (t *renameEntityTool) Name() string { return "rename_entity" }

func (t *renameEntityTool) Description() string {
	return "Rename an entity: change its friendly name and optionally its entity ID. " +
		"Renaming the entity ID breaks existing automations that reference the old ID."
}

func (t *renameEntityTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"entity_id": {
				"type": "string",
				"description": "The current entity ID."
			},
			"name": {
				"type": "string",
				"description": "The new friendly name."
			},
			"new_entity_id": {
				"type": "string",
				"description": "Optional: a new entity ID (must keep the same domain prefix)."
			}
		},
		"required": ["entity_id"]
	}`)
}

func (t *renameEntityTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	entityID := stringArg(args, "entity_id")
	name := stringArg(args, "name")
	newEntityID := stringArg(args, "new_entity_id")

	if entityID == "" {
		return "Error: entity_id is required.", nil
	}
	if name == "" && newEntityID == "" {
		return "Error: provide a name or a new_entity_id.", nil
	}
	if newEntityID != "" {
		oldDomain, _, _ := strings.Cut(entityID, ".")
		newDomain, _, _ := strings.Cut(newEntityID, ".")
		if oldDomain != newDomain {
			return fmt.Sprintf("Error: the new entity ID must stay in the '%s' domain.", oldDomain), nil
		}
	}

	updates := map[string]any{}
	if name != "" {
		updates["name"] = name
	}
	if newEntityID != "" {
		updates["new_entity_id"] = newEntityID
	}
	if err := t.registry.UpdateEntity(ctx, entityID, updates); err != nil {
		return toolError("renaming entity", err), nil
	}

	if newEntityID != "" {
		return fmt.Sprintf("Renamed %s to %s.", entityID, newEntityID), nil
	}
	return fmt.Sprintf("Renamed %s to '%s'.", entityID, name), nil
}

type assignEntityAreaTool struct {
	registry *homeassistant.RegistryClient
}

func (t *assignEntityAreaTool) Name() string { return "assign_entity_area" }

func (t *assignEntityAreaTool) Description() string {
	return "Assign an entity to an area (room). The area is matched by name against the area registry."
}

func (t *assignEntityAreaTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"entity_id": {
				"type": "string",
				"description": "The entity to assign."
			},
			"area": {
				"type": "string",
				"description": "The area name (e.g., 'Bedroom') or area ID."
			}
		},
		"required": ["entity_id", "area"]
	}`)
}

func (t *assignEntityAreaTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	entityID := stringArg(args, "entity_id")
	area := stringArg(args, "area")
	if entityID == "" || area == "" {
		return "Error: entity_id and area are required.", nil
	}

	areas, err := t.registry.ListAreas(ctx)
	if err != nil {
		return toolError("listing areas", err), nil
	}

	areaID := ""
	for _, candidate := range areas {
		if candidate.AreaID == area || strings.EqualFold(candidate.Name, area) {
			areaID = candidate.AreaID
			break
		}
	}
	if areaID == "" {
		names := make([]string, 0, len(areas))
		for _, candidate := range areas {
			names = append(names, candidate.Name)
		}
		return fmt.Sprintf("Error: no area matches '%s'. Known areas: %s", area, strings.Join(names, ", ")), nil
	}

	if err := t.registry.UpdateEntity(ctx, entityID, map[string]any{"area_id": areaID}); err != nil {
		return toolError("assigning entity area", err), nil
	}
	return fmt.Sprintf("Assigned %s to area '%s'.", entityID, area), nil
}
