package hatools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/munin-ai/munin/internal/homeassistant"
)

const (
	errorLogDefaultLines = 50
	errorLogMaxLines     = 200

	logbookDefaultHours = 24
	logbookMaxHours     = 168
	logbookEntryLimit   = 50
)

type getServicesTool struct {
	client *homeassistant.Client
}

func (t *getServicesTool) Name() string { return "get_services" }

func (t *getServicesTool) Description() string {
	return "List available services for a domain. Shows what actions can be performed. " +
		"Use this to discover what services are available for a specific integration."
}

func (t *getServicesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"domain": {
				"type": "string",
				"description": "Service domain to list (e.g., 'light', 'automation', 'switch'). Leave empty to list all domains."
			}
		},
		"required": []
	}`)
}

func (t *getServicesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	domainFilter := strings.ToLower(stringArg(args, "domain"))

	services, err := t.client.ListServices(ctx)
	if err != nil {
		return toolError("getting services", err), nil
	}

	if domainFilter != "" {
		filtered, ok := services[domainFilter]
		if !ok {
			return fmt.Sprintf("No services found for domain '%s'.", domainFilter), nil
		}
		services = map[string][]homeassistant.Service{domainFilter: filtered}
	}
	if len(services) == 0 {
		return "No services found.", nil
	}

	domains := make([]string, 0, len(services))
	for domain := range services {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	var lines []string
	for _, domain := range domains {
		domainServices := services[domain]
		if domainFilter != "" || len(domainServices) <= 5 {
			lines = append(lines, fmt.Sprintf("\n%s:", domain))
			for _, svc := range domainServices {
				desc := svc.Description
				if len(desc) > 80 {
					desc = desc[:80] + "..."
				}
				lines = append(lines, fmt.Sprintf("  - %s: %s", svc.Name, desc))
			}
		} else {
			lines = append(lines, fmt.Sprintf("%s: %d services", domain, len(domainServices)))
		}
	}
	return "Available services:\n" + strings.Join(lines, "\n"), nil
}

type getErrorLogTool struct {
	client *homeassistant.Client
}

func (t *getErrorLogTool) Name() string { return "get_error_log" }

func (t *getErrorLogTool) Description() string {
	return "Get the Home Assistant error log. Shows recent errors and warnings. " +
		"Use this to diagnose issues and troubleshoot problems."
}

func (t *getErrorLogTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"lines": {
				"type": "integer",
				"description": "Number of lines to return (default 50, max 200)."
			}
		},
		"required": []
	}`)
}

func (t *getErrorLogTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	lines := intArg(args, "lines", errorLogDefaultLines)
	if lines > errorLogMaxLines {
		lines = errorLogMaxLines
	}

	log, err := t.client.GetErrorLog(ctx)
	if err != nil {
		return toolError("getting error log", err), nil
	}

	logLines := strings.Split(strings.TrimSpace(log), "\n")
	if len(logLines) > lines {
		logLines = logLines[len(logLines)-lines:]
	}
	if len(logLines) == 0 || (len(logLines) == 1 && logLines[0] == "") {
		return "No errors in log.", nil
	}
	return fmt.Sprintf("Error log (last %d lines):\n%s", len(logLines), strings.Join(logLines, "\n")), nil
}

type getLogbookTool struct {
	client *homeassistant.Client
}

func (t *getLogbookTool) Name() string { return "get_logbook" }

func (t *getLogbookTool) Description() string {
	return "Get recent logbook entries showing what happened with entities. " +
		"Use this to see the history of state changes and events."
}

func (t *getLogbookTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"entity_id": {
				"type": "string",
				"description": "Filter by entity ID (optional)."
			},
			"hours": {
				"type": "integer",
				"description": "How many hours of history to retrieve (default 24, max 168)."
			}
		},
		"required": []
	}`)
}

func (t *getLogbookTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	entityID := stringArg(args, "entity_id")
	hours := intArg(args, "hours", logbookDefaultHours)
	if hours > logbookMaxHours {
		hours = logbookMaxHours
	}

	startTime := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339)
	entries, err := t.client.GetLogbook(ctx, entityID, startTime, "")
	if err != nil {
		return toolError("getting logbook", err), nil
	}
	if len(entries) == 0 {
		return "No logbook entries found for the specified criteria.", nil
	}

	truncated := len(entries) > logbookEntryLimit
	if truncated {
		entries = entries[:logbookEntryLimit]
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		when, _ := entry["when"].(string)
		if len(when) > 19 {
			when = when[:19]
		}
		name, _ := entry["name"].(string)
		if name == "" {
			name = "Unknown"
		}
		message, _ := entry["message"].(string)
		if message == "" {
			message, _ = entry["state"].(string)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", when, name, message))
	}

	output := fmt.Sprintf("Logbook entries (last %d hours", hours)
	if entityID != "" {
		output += fmt.Sprintf(", entity: %s", entityID)
	}
	output += "):\n" + strings.Join(lines, "\n")
	if truncated || len(entries) == logbookEntryLimit {
		output += fmt.Sprintf("\n\n(Results limited to %d entries)", logbookEntryLimit)
	}
	return output, nil
}
