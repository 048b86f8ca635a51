package mode

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/munin-ai/munin/pkg/models"
)

// fakeClock is a settable clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheckToolAllowed_Table(t *testing.T) {
	tools := map[models.ToolCategory]string{
		models.CategoryReadOnly:    "get_entities",
		models.CategoryWrite:       "call_service",
		models.CategoryDestructive: "delete_automation",
	}

	tests := []struct {
		mode     Mode
		category models.ToolCategory
		want     bool
	}{
		{ModeChat, models.CategoryReadOnly, true},
		{ModeChat, models.CategoryWrite, false},
		{ModeChat, models.CategoryDestructive, false},
		{ModeNormal, models.CategoryReadOnly, true},
		{ModeNormal, models.CategoryWrite, true},
		{ModeNormal, models.CategoryDestructive, true},
		{ModeYolo, models.CategoryReadOnly, true},
		{ModeYolo, models.CategoryWrite, true},
		{ModeYolo, models.CategoryDestructive, true},
	}

	for _, tt := range tests {
		m := NewManager(Config{InitialMode: tt.mode})
		allowed, reason := m.CheckToolAllowed(tools[tt.category])
		if allowed != tt.want {
			t.Errorf("mode %s, category %s: allowed = %v, want %v", tt.mode, tt.category, allowed, tt.want)
		}
		if !allowed && !strings.Contains(reason, "Chat mode") {
			t.Errorf("denial reason should mention Chat mode, got %q", reason)
		}
	}
}

func TestCategoryFor_UnknownDefaultsToWrite(t *testing.T) {
	if got := CategoryFor("launch_rocket"); got != models.CategoryWrite {
		t.Errorf("unknown tool category = %q, want write", got)
	}
}

func TestCategoryFor_SearchToolsAreReadOnly(t *testing.T) {
	for _, name := range []string{"web_search", "search_ha_docs", "search_hacs"} {
		if got := CategoryFor(name); got != models.CategoryReadOnly {
			t.Errorf("CategoryFor(%q) = %q, want read_only", name, got)
		}
	}
}

func TestYoloExpiry(t *testing.T) {
	clock := newFakeClock()
	var (
		mu    sync.Mutex
		calls []Mode
	)
	m := NewManager(Config{
		InitialMode:  ModeNormal,
		YoloDuration: 10 * time.Minute,
		Now:          clock.Now,
		OnChange: func(previous, current Mode) {
			mu.Lock()
			calls = append(calls, current)
			mu.Unlock()
		},
	})

	if _, err := m.Set(ModeYolo); err != nil {
		t.Fatal(err)
	}
	if m.Current() != ModeYolo {
		t.Fatal("mode should be YOLO after Set")
	}

	clock.Advance(11 * time.Minute)

	if got := m.Current(); got != ModeNormal {
		t.Errorf("mode after expiry = %q, want normal", got)
	}
	// Repeated reads must not fire the callback again.
	m.Current()
	m.Current()

	mu.Lock()
	defer mu.Unlock()
	// First transition to YOLO, then exactly one revert to NORMAL.
	if len(calls) != 2 || calls[0] != ModeYolo || calls[1] != ModeNormal {
		t.Errorf("callback transitions = %v, want [yolo normal]", calls)
	}
}

func TestYoloRearmResetsTimer(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(Config{YoloDuration: 10 * time.Minute, Now: clock.Now})

	m.Set(ModeYolo)
	clock.Advance(8 * time.Minute)
	m.Set(ModeYolo) // re-arm
	clock.Advance(8 * time.Minute)

	if got := m.Current(); got != ModeYolo {
		t.Errorf("mode = %q, want yolo after re-arm", got)
	}
}

func TestSetMessages(t *testing.T) {
	m := NewManager(Config{YoloDuration: 10 * time.Minute})

	msg, _ := m.Set(ModeYolo)
	if msg != "YOLO mode activated for 10 minutes. All actions will be auto-approved. Be careful!" {
		t.Errorf("yolo message = %q", msg)
	}
	msg, _ = m.Set(ModeChat)
	if msg != "Chat mode activated. I can only read and answer questions now." {
		t.Errorf("chat message = %q", msg)
	}
	msg, _ = m.Set(ModeNormal)
	if msg != "Normal mode activated. Destructive actions require confirmation." {
		t.Errorf("normal message = %q", msg)
	}

	if _, err := m.Set(Mode("turbo")); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestNeedsConfirmation(t *testing.T) {
	m := NewManager(Config{InitialMode: ModeNormal})
	if !m.NeedsConfirmation("delete_helper") {
		t.Error("destructive tool in normal mode should need confirmation")
	}
	if m.NeedsConfirmation("call_service") {
		t.Error("write tool should not need confirmation")
	}

	m.Set(ModeYolo)
	if m.NeedsConfirmation("delete_helper") {
		t.Error("YOLO mode should not need confirmation")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Mode
		ok   bool
	}{
		{"enable yolo mode", ModeYolo, true},
		{"yolo", ModeYolo, true},
		{"please switch to chat mode", ModeChat, true},
		{"read-only mode", ModeChat, true},
		{"enable normal mode", ModeNormal, true},
		// Precedence: "disable yolo" must resolve to NORMAL, not YOLO.
		{"disable yolo mode", ModeNormal, true},
		{"exit yolo mode now", ModeNormal, true},
		{"turn on the lights", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseCommand(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseCommand(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsQuery(t *testing.T) {
	if !IsQuery("What mode are you in?") {
		t.Error("mode question should be recognized")
	}
	if IsQuery("turn off the kitchen lights") {
		t.Error("normal request should not be a mode query")
	}
}

func TestStatusText_YoloRemaining(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(Config{YoloDuration: 10 * time.Minute, Now: clock.Now})
	m.Set(ModeYolo)
	clock.Advance(4 * time.Minute)

	status := m.StatusText()
	if !strings.Contains(status, "YOLO") || !strings.Contains(status, "6 minutes") {
		t.Errorf("status = %q, want YOLO with 6 minutes remaining", status)
	}
}
