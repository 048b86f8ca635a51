// Package cron runs scheduled maintenance: nightly audit retention and
// any other recurring housekeeping jobs.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/munin-ai/munin/internal/store"
)

// DefaultRetentionSchedule runs cleanup at 03:00 every night.
const DefaultRetentionSchedule = "0 3 * * *"

// Job is a named recurring task. Errors are logged, not fatal.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with logging and per-job timing.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	mu   sync.Mutex
	jobs []string
}

// NewScheduler creates an idle scheduler. Call Start after adding jobs.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  slog.With("component", "cron"),
	}
}

// AddJob schedules job under the given cron spec (standard five-field
// syntax or a @descriptor).
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(context.Background()); err != nil {
			s.log.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.log.Info("scheduled job done", "job", name, "duration", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("cron: add %s (%q): %w", name, spec, err)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, name)
	s.mu.Unlock()
	return nil
}

// Jobs returns the names of scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.Jobs()))
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RetentionJob returns a job that deletes audit entries older than
// retentionDays. A non-positive retention disables deletion, matching
// the store's cleanup semantics.
func RetentionJob(st *store.Store, retentionDays int) Job {
	log := slog.With("component", "cron")
	return func(ctx context.Context) error {
		deleted, err := st.Audit.CleanupOldLogs(ctx, retentionDays)
		if err != nil {
			return err
		}
		if deleted > 0 {
			log.Info("audit retention applied", "deleted", deleted, "retention_days", retentionDays)
		}
		return nil
	}
}
