package models

import "time"

// MemoryCategory classifies a long-term memory.
type MemoryCategory string

const (
	MemoryUserPreference MemoryCategory = "user_preference"
	MemoryDeviceInfo     MemoryCategory = "device_info"
	MemoryAutomationNote MemoryCategory = "automation_note"
	MemoryHomeLayout     MemoryCategory = "home_layout"
	MemoryRoutine        MemoryCategory = "routine"
	MemoryGeneral        MemoryCategory = "general"
)

// MemoryCategories lists every valid category, in schema order.
var MemoryCategories = []MemoryCategory{
	MemoryUserPreference,
	MemoryDeviceInfo,
	MemoryAutomationNote,
	MemoryHomeLayout,
	MemoryRoutine,
	MemoryGeneral,
}

// ValidMemoryCategory reports whether c is one of the known categories.
func ValidMemoryCategory(c MemoryCategory) bool {
	for _, known := range MemoryCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Memory is a persistent, categorized, keyword-searchable fact about the
// operator or the home, injected into every system prompt.
type Memory struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Category  MemoryCategory `json:"category"`
	Content   string         `json:"content"`
	Source    string         `json:"source,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}
