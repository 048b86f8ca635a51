package hatools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/munin-ai/munin/internal/homeassistant"
	"github.com/munin-ai/munin/internal/tools"
)

// objectClass describes one configuration-object family and which tools
// it gets. Helpers span several platforms and only support create and
// delete through these tools.
type objectClass struct {
	singular string
	plural   string
	hasCRUD  bool
}

var objectClasses = []objectClass{
	{singular: "automation", plural: "automations", hasCRUD: true},
	{singular: "script", plural: "scripts", hasCRUD: true},
	{singular: "scene", plural: "scenes", hasCRUD: true},
	{singular: "helper", plural: "helpers"},
}

// helperPlatforms are the entity domains treated as helpers.
var helperPlatforms = []string{
	"input_boolean", "input_number", "input_select",
	"input_text", "input_datetime", "input_button",
	"counter", "timer",
}

func (c objectClass) tools(client *homeassistant.Client) []tools.Tool {
	if !c.hasCRUD {
		return []tools.Tool{
			&listHelpersTool{client: client},
			&createHelperTool{client: client},
			&deleteHelperTool{client: client},
		}
	}
	set := []tools.Tool{
		&getObjectConfigTool{client: client, class: c},
		&upsertObjectTool{client: client, class: c, create: true},
		&upsertObjectTool{client: client, class: c, create: false},
		&deleteObjectTool{client: client, class: c},
	}
	if c.singular == "automation" {
		set = append(set, &getAutomationsTool{client: client})
	} else {
		set = append(set, &listObjectsTool{client: client, class: c})
	}
	return set
}

// parseObjectBody accepts a YAML or JSON configuration body. YAML is a
// superset of JSON here, so one parser covers both.
func parseObjectBody(body string) (map[string]any, error) {
	var config map[string]any
	if err := yaml.Unmarshal([]byte(body), &config); err != nil {
		return nil, fmt.Errorf("invalid YAML/JSON: %w", err)
	}
	if config == nil {
		return nil, fmt.Errorf("empty configuration")
	}
	return config, nil
}

// renderObjectConfig renders a stored configuration as YAML for the LLM.
func renderObjectConfig(config map[string]any) string {
	data, err := yaml.Marshal(config)
	if err != nil {
		fallback, _ := json.Marshal(config)
		return string(fallback)
	}
	return string(data)
}

type getAutomationsTool struct {
	client *homeassistant.Client
}

func (t *getAutomationsTool) Name() string { return "get_automations" }

func (t *getAutomationsTool) Description() string {
	return "List all automations in Home Assistant with their current state (on/off) and last triggered time. " +
		"Use this to see what automations exist and their status."
}

func (t *getAutomationsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"search": {
				"type": "string",
				"description": "Search term to filter automation names or IDs."
			}
		},
		"required": []
	}`)
}

func (t *getAutomationsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	search := strings.ToLower(stringArg(args, "search"))

	states, err := t.client.ListStates(ctx)
	if err != nil {
		return toolError("getting automations", err), nil
	}

	var lines []string
	count := 0
	for _, state := range states {
		if !strings.HasPrefix(state.EntityID, "automation.") {
			continue
		}
		if !matchesSearch(state, search) {
			continue
		}
		count++

		friendly := state.FriendlyName()
		if friendly == "" {
			friendly = state.EntityID
		}
		lastTriggered := "Never"
		if raw, ok := state.Attributes["last_triggered"].(string); ok && raw != "" {
			lastTriggered = raw
		}
		status := "OFF"
		if state.State == "on" {
			status = "ON"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s (%s)", status, friendly, state.EntityID))
		lines = append(lines, fmt.Sprintf("    Last triggered: %s", lastTriggered))
	}
	if count == 0 {
		return "No automations found matching the criteria.", nil
	}
	return fmt.Sprintf("Found %d automations:\n%s", count, strings.Join(lines, "\n")), nil
}

type listObjectsTool struct {
	client *homeassistant.Client
	class  objectClass
}

func (t *listObjectsTool) Name() string { return "get_" + t.class.plural }

func (t *listObjectsTool) Description() string {
	return fmt.Sprintf("List all %s in Home Assistant with their current state and friendly names.", t.class.plural)
}

func (t *listObjectsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"search": {
				"type": "string",
				"description": "Search term to filter names or IDs."
			}
		},
		"required": []
	}`)
}

func (t *listObjectsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	search := strings.ToLower(stringArg(args, "search"))

	states, err := t.client.ListStates(ctx)
	if err != nil {
		return toolError("getting "+t.class.plural, err), nil
	}

	var lines []string
	for _, state := range states {
		if !strings.HasPrefix(state.EntityID, t.class.singular+".") {
			continue
		}
		if !matchesSearch(state, search) {
			continue
		}
		namePart := ""
		if friendly := state.FriendlyName(); friendly != "" {
			namePart = fmt.Sprintf(" (%s)", friendly)
		}
		lines = append(lines, fmt.Sprintf("- %s%s: %s", state.EntityID, namePart, state.State))
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No %s found matching the criteria.", t.class.plural), nil
	}
	return fmt.Sprintf("Found %d %s:\n%s", len(lines), t.class.plural, strings.Join(lines, "\n")), nil
}

type getObjectConfigTool struct {
	client *homeassistant.Client
	class  objectClass
}

func (t *getObjectConfigTool) Name() string { return "get_" + t.class.singular + "_config" }

func (t *getObjectConfigTool) Description() string {
	return fmt.Sprintf("Get the full configuration of a %s by its internal ID, rendered as YAML. "+
		"Use this before updating an existing %s.", t.class.singular, t.class.singular)
}

func (t *getObjectConfigTool) Schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"%s_id": {
				"type": "string",
				"description": "The internal ID of the %s (not the entity ID)."
			}
		},
		"required": ["%s_id"]
	}`, t.class.singular, t.class.singular, t.class.singular))
}

func (t *getObjectConfigTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := stringArg(args, t.class.singular+"_id")
	if id == "" {
		return fmt.Sprintf("Error: %s_id is required.", t.class.singular), nil
	}

	config, err := t.client.GetObjectConfig(ctx, t.class.singular, id)
	if err != nil {
		return toolError("getting "+t.class.singular+" config", err), nil
	}
	return fmt.Sprintf("Configuration of %s '%s':\n%s", t.class.singular, id, renderObjectConfig(config)), nil
}

type upsertObjectTool struct {
	client *homeassistant.Client
	class  objectClass
	create bool
}

func (t *upsertObjectTool) Name() string {
	if t.create {
		return "create_" + t.class.singular
	}
	return "update_" + t.class.singular
}

func (t *upsertObjectTool) Description() string {
	verb := "Update an existing"
	if t.create {
		verb = "Create a new"
	}
	return fmt.Sprintf("%s %s. The configuration body may be YAML or JSON.", verb, t.class.singular)
}

func (t *upsertObjectTool) Schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"%s_id": {
				"type": "string",
				"description": "The internal ID of the %s (not the entity ID)."
			},
			"config": {
				"type": "string",
				"description": "The full %s configuration as YAML or JSON."
			}
		},
		"required": ["%s_id", "config"]
	}`, t.class.singular, t.class.singular, t.class.singular, t.class.singular))
}

func (t *upsertObjectTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := stringArg(args, t.class.singular+"_id")
	body := stringArg(args, "config")
	if id == "" || body == "" {
		return fmt.Sprintf("Error: %s_id and config are required.", t.class.singular), nil
	}

	config, err := parseObjectBody(body)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	verb := "updating"
	if t.create {
		verb = "creating"
	}
	if err := t.client.UpsertObjectConfig(ctx, t.class.singular, id, config); err != nil {
		return toolError(verb+" "+t.class.singular, err), nil
	}

	if t.create {
		return fmt.Sprintf("Created %s '%s'.", t.class.singular, id), nil
	}
	return fmt.Sprintf("Updated %s '%s'.", t.class.singular, id), nil
}

type deleteObjectTool struct {
	client *homeassistant.Client
	class  objectClass
}

func (t *deleteObjectTool) Name() string { return "delete_" + t.class.singular }

func (t *deleteObjectTool) Description() string {
	return fmt.Sprintf("Delete a %s by its internal ID. This cannot be undone.", t.class.singular)
}

func (t *deleteObjectTool) Schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"%s_id": {
				"type": "string",
				"description": "The internal ID of the %s to delete."
			}
		},
		"required": ["%s_id"]
	}`, t.class.singular, t.class.singular, t.class.singular))
}

func (t *deleteObjectTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	id := stringArg(args, t.class.singular+"_id")
	if id == "" {
		return fmt.Sprintf("Error: %s_id is required.", t.class.singular), nil
	}
	if err := t.client.DeleteObjectConfig(ctx, t.class.singular, id); err != nil {
		return toolError("deleting "+t.class.singular, err), nil
	}
	return fmt.Sprintf("Deleted %s '%s'.", t.class.singular, id), nil
}

type listHelpersTool struct {
	client *homeassistant.Client
}

func (t *listHelpersTool) Name() string { return "get_helpers" }

func (t *listHelpersTool) Description() string {
	return "List helper entities (input_boolean, input_number, input_select, input_text, input_datetime, " +
		"input_button, counter, timer) with their current values."
}

func (t *listHelpersTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"search": {
				"type": "string",
				"description": "Search term to filter helper names or IDs."
			}
		},
		"required": []
	}`)
}

func (t *listHelpersTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	search := strings.ToLower(stringArg(args, "search"))

	states, err := t.client.ListStates(ctx)
	if err != nil {
		return toolError("getting helpers", err), nil
	}

	platforms := make(map[string]bool, len(helperPlatforms))
	for _, platform := range helperPlatforms {
		platforms[platform] = true
	}

	grouped := make(map[string][]string)
	for _, state := range states {
		domain, _, ok := strings.Cut(state.EntityID, ".")
		if !ok || !platforms[domain] {
			continue
		}
		if !matchesSearch(state, search) {
			continue
		}
		namePart := ""
		if friendly := state.FriendlyName(); friendly != "" {
			namePart = fmt.Sprintf(" (%s)", friendly)
		}
		grouped[domain] = append(grouped[domain],
			fmt.Sprintf("- %s%s: %s", state.EntityID, namePart, state.State))
	}
	if len(grouped) == 0 {
		return "No helpers found matching the criteria.", nil
	}

	domains := make([]string, 0, len(grouped))
	total := 0
	for domain, lines := range grouped {
		domains = append(domains, domain)
		total += len(lines)
	}
	sort.Strings(domains)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d helpers:", total)
	for _, domain := range domains {
		fmt.Fprintf(&b, "\n%s:\n%s", domain, strings.Join(grouped[domain], "\n"))
	}
	return b.String(), nil
}

type createHelperTool struct {
	client *homeassistant.Client
}

func (t *createHelperTool) Name() string { return "create_helper" }

func (t *createHelperTool) Description() string {
	return "Create a helper entity. Supported types: input_boolean, input_number, input_select, input_text, " +
		"input_datetime, input_button, counter, timer. The configuration body may be YAML or JSON."
}

func (t *createHelperTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"helper_type": {
				"type": "string",
				"enum": ["input_boolean", "input_number", "input_select", "input_text", "input_datetime", "input_button", "counter", "timer"],
				"description": "The helper platform."
			},
			"helper_id": {
				"type": "string",
				"description": "The internal ID of the helper (without the domain prefix)."
			},
			"config": {
				"type": "string",
				"description": "The helper configuration as YAML or JSON (e.g., name, min, max)."
			}
		},
		"required": ["helper_type", "helper_id", "config"]
	}`)
}

func (t *createHelperTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	helperType := stringArg(args, "helper_type")
	helperID := stringArg(args, "helper_id")
	body := stringArg(args, "config")
	if helperType == "" || helperID == "" || body == "" {
		return "Error: helper_type, helper_id and config are required.", nil
	}

	config, err := parseObjectBody(body)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	if err := t.client.UpsertObjectConfig(ctx, helperType, helperID, config); err != nil {
		return toolError("creating helper", err), nil
	}
	return fmt.Sprintf("Created helper %s.%s.", helperType, helperID), nil
}

type deleteHelperTool struct {
	client *homeassistant.Client
}

func (t *deleteHelperTool) Name() string { return "delete_helper" }

func (t *deleteHelperTool) Description() string {
	return "Delete a helper entity by its type and internal ID. This cannot be undone."
}

func (t *deleteHelperTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"helper_type": {
				"type": "string",
				"enum": ["input_boolean", "input_number", "input_select", "input_text", "input_datetime", "input_button", "counter", "timer"],
				"description": "The helper platform."
			},
			"helper_id": {
				"type": "string",
				"description": "The internal ID of the helper (without the domain prefix)."
			}
		},
		"required": ["helper_type", "helper_id"]
	}`)
}

func (t *deleteHelperTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	helperType := stringArg(args, "helper_type")
	helperID := stringArg(args, "helper_id")
	if helperType == "" || helperID == "" {
		return "Error: helper_type and helper_id are required.", nil
	}
	if err := t.client.DeleteObjectConfig(ctx, helperType, helperID); err != nil {
		return toolError("deleting helper", err), nil
	}
	return fmt.Sprintf("Deleted helper %s.%s.", helperType, helperID), nil
}
