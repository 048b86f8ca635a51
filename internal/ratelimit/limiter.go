// Package ratelimit caps destructive and modifying operations with
// per-category sliding windows. Each category keeps a FIFO queue of
// completion timestamps; a check trims entries older than the window and
// allows the operation iff the queue is below the configured cap.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/munin-ai/munin/pkg/models"
)

// Operation is a rate-limited operation category.
type Operation string

const (
	OpDeletion     Operation = "deletion"
	OpModification Operation = "modification"
)

// OperationFor maps a tool category to its rate-limit operation. Read-only
// tools are not limited and return false.
func OperationFor(category models.ToolCategory) (Operation, bool) {
	switch category {
	case models.CategoryDestructive:
		return OpDeletion, true
	case models.CategoryWrite:
		return OpModification, true
	default:
		return "", false
	}
}

// Config parameterizes a Limiter.
type Config struct {
	DeletionsPerHour     int
	ModificationsPerHour int
	Window               time.Duration
	Enabled              bool

	// Now overrides the clock for tests.
	Now func() time.Time
}

// DefaultConfig returns the stock limits: 5 deletions and 20 modifications
// per rolling hour.
func DefaultConfig() Config {
	return Config{
		DeletionsPerHour:     5,
		ModificationsPerHour: 20,
		Window:               time.Hour,
		Enabled:              true,
	}
}

// Status is a point-in-time snapshot of limiter use.
type Status struct {
	DeletionsUsed      int `json:"deletions_used"`
	DeletionsLimit     int `json:"deletions_limit"`
	ModificationsUsed  int `json:"modifications_used"`
	ModificationsLimit int `json:"modifications_limit"`
}

// Limiter enforces the per-category sliding windows. Safe for concurrent
// use.
type Limiter struct {
	mu            sync.Mutex
	deletions     []time.Time
	modifications []time.Time
	config        Config
	now           func() time.Time
	log           *slog.Logger
}

// NewLimiter creates a limiter from config, applying defaults for zero
// values.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.DeletionsPerHour <= 0 {
		config.DeletionsPerHour = def.DeletionsPerHour
	}
	if config.ModificationsPerHour <= 0 {
		config.ModificationsPerHour = def.ModificationsPerHour
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		config: config,
		now:    now,
		log:    slog.With("component", "ratelimit"),
	}
}

// Enabled reports whether the limiter is active.
func (l *Limiter) Enabled() bool {
	return l.config.Enabled
}

// CheckAllowed reports whether one more operation of the given category may
// proceed. The denial reason is the operator-facing explanation.
func (l *Limiter) CheckAllowed(op Operation) (bool, string) {
	if !l.config.Enabled {
		return true, ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch op {
	case OpDeletion:
		l.deletions = trimWindow(l.deletions, l.now(), l.config.Window)
		if len(l.deletions) >= l.config.DeletionsPerHour {
			return false, fmt.Sprintf(
				"Rate limit exceeded: %d/%d deletions in the last hour. Please wait before deleting more items.",
				len(l.deletions), l.config.DeletionsPerHour,
			)
		}
	case OpModification:
		l.modifications = trimWindow(l.modifications, l.now(), l.config.Window)
		if len(l.modifications) >= l.config.ModificationsPerHour {
			return false, fmt.Sprintf(
				"Rate limit exceeded: %d/%d modifications in the last hour. Please wait before making more changes.",
				len(l.modifications), l.config.ModificationsPerHour,
			)
		}
	}
	return true, ""
}

// Record registers a completed operation. Only successful operations are
// recorded; denied or failed executions do not consume the budget.
func (l *Limiter) Record(op Operation) {
	if !l.config.Enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch op {
	case OpDeletion:
		l.deletions = append(l.deletions, l.now())
	case OpModification:
		l.modifications = append(l.modifications, l.now())
	}
}

// Status returns current use against the caps.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.deletions = trimWindow(l.deletions, now, l.config.Window)
	l.modifications = trimWindow(l.modifications, now, l.config.Window)

	return Status{
		DeletionsUsed:      len(l.deletions),
		DeletionsLimit:     l.config.DeletionsPerHour,
		ModificationsUsed:  len(l.modifications),
		ModificationsLimit: l.config.ModificationsPerHour,
	}
}

// Reset clears both windows.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletions = nil
	l.modifications = nil
	l.log.Info("rate limiter reset")
}

// trimWindow drops timestamps older than the window. The queue is in
// arrival order, so trimming stops at the first in-window entry.
func trimWindow(queue []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(queue) && !queue[idx].After(cutoff) {
		idx++
	}
	return queue[idx:]
}
