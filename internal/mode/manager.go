// Package mode implements the tri-state operating mode that gates tool
// execution: CHAT is read-only, NORMAL allows writes with confirmation on
// destructive actions, YOLO auto-approves everything for a bounded time.
package mode

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/munin-ai/munin/pkg/models"
)

// Mode is one of the three operating modes.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeNormal Mode = "normal"
	ModeYolo   Mode = "yolo"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	return m == ModeChat || m == ModeNormal || m == ModeYolo
}

// toolCategories maps tool names to their category. Tools not listed here
// are treated as write operations so an unknown tool is never silently
// allowed in CHAT mode.
var toolCategories = map[string]models.ToolCategory{
	"get_entities":          models.CategoryReadOnly,
	"get_entity_state":      models.CategoryReadOnly,
	"get_automations":       models.CategoryReadOnly,
	"get_automation_config": models.CategoryReadOnly,
	"get_scripts":           models.CategoryReadOnly,
	"get_script_config":     models.CategoryReadOnly,
	"get_scenes":            models.CategoryReadOnly,
	"get_scene_config":      models.CategoryReadOnly,
	"get_helpers":           models.CategoryReadOnly,
	"get_services":          models.CategoryReadOnly,
	"get_error_log":         models.CategoryReadOnly,
	"get_logbook":           models.CategoryReadOnly,
	"recall_memories":       models.CategoryReadOnly,
	"web_search":            models.CategoryReadOnly,
	"search_ha_docs":        models.CategoryReadOnly,
	"search_hacs":           models.CategoryReadOnly,

	"call_service":       models.CategoryWrite,
	"create_automation":  models.CategoryWrite,
	"update_automation":  models.CategoryWrite,
	"create_script":      models.CategoryWrite,
	"update_script":      models.CategoryWrite,
	"create_scene":       models.CategoryWrite,
	"update_scene":       models.CategoryWrite,
	"create_helper":      models.CategoryWrite,
	"store_memory":       models.CategoryWrite,
	"rename_entity":      models.CategoryWrite,
	"assign_entity_area": models.CategoryWrite,

	"delete_automation": models.CategoryDestructive,
	"delete_script":     models.CategoryDestructive,
	"delete_scene":      models.CategoryDestructive,
	"delete_helper":     models.CategoryDestructive,
	"forget_memory":     models.CategoryDestructive,
}

// CategoryFor returns the category of a tool by name. Unknown tools are
// classified as write.
func CategoryFor(toolName string) models.ToolCategory {
	if cat, ok := toolCategories[toolName]; ok {
		return cat
	}
	return models.CategoryWrite
}

// ChangeCallback observes mode transitions, including the automatic YOLO
// revert. It runs under the manager lock and must not call back in.
type ChangeCallback func(previous, current Mode)

// Manager holds the current operating mode. All reads check YOLO expiry
// first: past the deadline the mode atomically reverts to NORMAL and the
// change callback fires exactly once per activation.
type Manager struct {
	mu           sync.Mutex
	mode         Mode
	yoloDuration time.Duration
	yoloExpires  time.Time
	onChange     ChangeCallback
	now          func() time.Time
	log          *slog.Logger
}

// Config parameterizes a Manager.
type Config struct {
	InitialMode  Mode
	YoloDuration time.Duration
	OnChange     ChangeCallback

	// Now overrides the clock for tests.
	Now func() time.Time
}

// NewManager creates a manager. A zero YoloDuration defaults to 10 minutes;
// an invalid initial mode defaults to NORMAL.
func NewManager(cfg Config) *Manager {
	if cfg.YoloDuration <= 0 {
		cfg.YoloDuration = 10 * time.Minute
	}
	if !cfg.InitialMode.Valid() {
		cfg.InitialMode = ModeNormal
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		mode:         cfg.InitialMode,
		yoloDuration: cfg.YoloDuration,
		onChange:     cfg.OnChange,
		now:          cfg.Now,
		log:          slog.With("component", "mode"),
	}
}

// Current returns the operating mode after applying YOLO expiry.
func (m *Manager) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkExpiryLocked()
	return m.mode
}

// YoloRemaining returns the time left in YOLO mode, or zero when not in
// YOLO.
func (m *Manager) YoloRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkExpiryLocked()
	if m.mode != ModeYolo {
		return 0
	}
	remaining := m.yoloExpires.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Set switches the operating mode and returns the confirmation message for
// the operator. Setting YOLO (re)arms the expiry timer.
func (m *Manager) Set(target Mode) (string, error) {
	if !target.Valid() {
		return "", fmt.Errorf("mode: unknown mode %q", target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkExpiryLocked()

	previous := m.mode
	m.mode = target

	switch target {
	case ModeYolo:
		m.yoloExpires = m.now().Add(m.yoloDuration)
	default:
		m.yoloExpires = time.Time{}
	}

	if previous != target && m.onChange != nil {
		m.onChange(previous, target)
	}
	m.log.Info("mode changed", "from", previous, "to", target)

	switch target {
	case ModeYolo:
		minutes := int(m.yoloDuration.Minutes())
		return fmt.Sprintf("YOLO mode activated for %d minutes. All actions will be auto-approved. Be careful!", minutes), nil
	case ModeChat:
		return "Chat mode activated. I can only read and answer questions now.", nil
	default:
		return "Normal mode activated. Destructive actions require confirmation.", nil
	}
}

// CheckToolAllowed reports whether the named tool may execute under the
// current mode, with a denial reason when it may not.
func (m *Manager) CheckToolAllowed(toolName string) (bool, string) {
	current := m.Current()
	category := CategoryFor(toolName)

	if category == models.CategoryReadOnly {
		return true, ""
	}
	if current == ModeChat {
		reason := fmt.Sprintf(
			"I'm in Chat mode and cannot execute '%s'. Switch to Normal mode ('enable normal mode') or YOLO mode ('enable yolo mode') if you want me to make changes.",
			toolName,
		)
		return false, reason
	}
	return true, ""
}

// NeedsConfirmation reports whether the named tool requires operator
// confirmation: only destructive tools in NORMAL mode do.
func (m *Manager) NeedsConfirmation(toolName string) bool {
	return m.Current() == ModeNormal && CategoryFor(toolName) == models.CategoryDestructive
}

// StatusText formats the current mode for the operator, including the
// remaining YOLO minutes when applicable.
func (m *Manager) StatusText() string {
	current := m.Current()
	switch current {
	case ModeChat:
		return "I'm currently in **CHAT** mode - I can only read data and answer questions."
	case ModeYolo:
		minutes := int((m.YoloRemaining() + time.Minute - 1) / time.Minute)
		return fmt.Sprintf("I'm currently in **YOLO** mode - all actions are auto-approved. %d minutes remaining.", minutes)
	default:
		return "I'm currently in **NORMAL** mode - I can make changes, but destructive actions need your confirmation."
	}
}

// checkExpiryLocked reverts an expired YOLO activation to NORMAL. Callers
// must hold m.mu.
func (m *Manager) checkExpiryLocked() {
	if m.mode != ModeYolo || m.yoloExpires.IsZero() {
		return
	}
	if m.now().Before(m.yoloExpires) {
		return
	}
	m.mode = ModeNormal
	m.yoloExpires = time.Time{}
	m.log.Info("YOLO mode expired, reverting to normal")
	if m.onChange != nil {
		m.onChange(ModeYolo, ModeNormal)
	}
}
