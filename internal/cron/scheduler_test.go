package cron

import (
	"context"
	"testing"

	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/pkg/models"
)

func TestAddJob_ValidatesSpec(t *testing.T) {
	s := NewScheduler()
	if err := s.AddJob("ok", DefaultRetentionSchedule, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := s.AddJob("bad", "not a cron spec", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("invalid spec accepted")
	}
	if jobs := s.Jobs(); len(jobs) != 1 || jobs[0] != "ok" {
		t.Errorf("jobs = %v", jobs)
	}
}

func TestRetentionJob(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	id, err := st.Audit.LogMessage(ctx, "telegram", models.MessageTypeUser, "old entry", "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(
		`UPDATE audit_logs SET timestamp = datetime('now', '-100 days') WHERE id = ?`, id); err != nil {
		t.Fatal(err)
	}
	st.Audit.LogMessage(ctx, "telegram", models.MessageTypeUser, "recent entry", "", "", nil)

	if err := RetentionJob(st, 90)(ctx); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("remaining rows = %d, want 1", count)
	}

	// Retention disabled: nothing is deleted.
	if err := RetentionJob(st, 0)(ctx); err != nil {
		t.Fatal(err)
	}
	st.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&count)
	if count != 1 {
		t.Errorf("rows after disabled retention = %d", count)
	}
}
