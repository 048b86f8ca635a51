// Package memorytools lets the LLM store, recall, and delete long-term
// memories backed by the store.
package memorytools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/internal/tools"
	"github.com/munin-ai/munin/pkg/models"
)

// recallLimit caps how many memories one recall renders.
const recallLimit = 20

// All returns the three memory tools wired to the repository.
func All(memories *store.MemoryRepository) []tools.Tool {
	return []tools.Tool{
		&storeMemoryTool{memories: memories},
		&recallMemoriesTool{memories: memories},
		&forgetMemoryTool{memories: memories},
	}
}

const categoryEnum = `["user_preference", "device_info", "automation_note", "home_layout", "routine", "general"]`

type storeMemoryTool struct {
	memories *store.MemoryRepository
}

func (t *storeMemoryTool) Name() string { return "store_memory" }

func (t *storeMemoryTool) Description() string {
	return "Store a fact or preference to remember long-term. Use this when the user says " +
		"'merke dir', 'remember this', or shares important information about their home, " +
		"devices, preferences, or routines that should be remembered across conversations. " +
		"Be concise - store the essence, not the full conversation."
}

func (t *storeMemoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {
				"type": "string",
				"description": "The fact or preference to remember. Be concise and specific."
			},
			"category": {
				"type": "string",
				"enum": ` + categoryEnum + `,
				"description": "Category: user_preference (language, style), device_info (device names, locations), automation_note (notes about automations), home_layout (rooms, areas), routine (schedules, habits), general (other facts)."
			}
		},
		"required": ["content", "category"]
	}`)
}

func (t *storeMemoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	category, _ := args["category"].(string)
	if content == "" {
		return "Error: content is required.", nil
	}

	id, err := t.memories.Add(ctx, content, models.MemoryCategory(category), "", "")
	if err != nil {
		return fmt.Sprintf("Error storing memory: %v", err), nil
	}
	return fmt.Sprintf("Gespeichert (ID: %d): %s", id, content), nil
}

type recallMemoriesTool struct {
	memories *store.MemoryRepository
}

func (t *recallMemoriesTool) Name() string { return "recall_memories" }

func (t *recallMemoriesTool) Description() string {
	return "Search stored memories for relevant information. Use this to recall previously " +
		"stored facts about the user's home, preferences, or devices."
}

func (t *recallMemoriesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Search term to find relevant memories."
			},
			"category": {
				"type": "string",
				"enum": ` + categoryEnum + `,
				"description": "Optional: Filter by category."
			}
		},
		"required": []
	}`)
}

func (t *recallMemoriesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	category, _ := args["category"].(string)

	var (
		memories []models.Memory
		err      error
	)
	switch {
	case query != "":
		memories, err = t.memories.Search(ctx, query)
	case category != "":
		memories, err = t.memories.GetByCategory(ctx, models.MemoryCategory(category))
	default:
		memories, err = t.memories.GetAll(ctx)
	}
	if err != nil {
		return fmt.Sprintf("Error recalling memories: %v", err), nil
	}
	if len(memories) == 0 {
		return "Keine Erinnerungen gefunden.", nil
	}

	total := len(memories)
	if len(memories) > recallLimit {
		memories = memories[:recallLimit]
	}
	lines := make([]string, 0, len(memories))
	for _, memory := range memories {
		lines = append(lines, fmt.Sprintf("- [%s] %s", memory.Category, memory.Content))
	}
	return fmt.Sprintf("Gefundene Erinnerungen (%d):\n%s", total, strings.Join(lines, "\n")), nil
}

type forgetMemoryTool struct {
	memories *store.MemoryRepository
}

func (t *forgetMemoryTool) Name() string { return "forget_memory" }

func (t *forgetMemoryTool) Description() string {
	return "Delete a stored memory by its ID. Use this when the user wants to remove " +
		"outdated or incorrect information."
}

func (t *forgetMemoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"memory_id": {
				"type": "integer",
				"description": "The ID of the memory to delete."
			}
		},
		"required": ["memory_id"]
	}`)
}

func (t *forgetMemoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	raw, ok := args["memory_id"].(float64)
	if !ok {
		return "Error: memory_id is required.", nil
	}
	id := int64(raw)

	deleted, err := t.memories.Delete(ctx, id)
	if err != nil {
		return fmt.Sprintf("Error deleting memory: %v", err), nil
	}
	if !deleted {
		return fmt.Sprintf("Erinnerung %d nicht gefunden.", id), nil
	}
	return fmt.Sprintf("Erinnerung %d gelöscht.", id), nil
}
