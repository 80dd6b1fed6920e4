package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"aroundtheclock/domain/executor"
	"aroundtheclock/domain/schedule"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history", "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func session(label string, started time.Time, state schedule.IntervalState, err error) executor.BlockSession {
	return executor.BlockSession{
		Interval:  schedule.BlockInterval{Label: label, Start: started, Duration: 10 * time.Minute},
		Interface: "eth0",
		Gateway:   "192.168.0.1",
		State:     state,
		StartedAt: started,
		EndedAt:   started.Add(10 * time.Minute),
		Err:       err,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 5, 12, 0, 0, time.Local)
	if err := s.Record(ctx, session("fajr", base, schedule.StateCompleted, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, session("thuhr", base.Add(7*time.Hour), schedule.StateFailed, errors.New("tool missing"))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Label != "thuhr" || entries[1].Label != "fajr" {
		t.Fatalf("expected newest first, got %s then %s", entries[0].Label, entries[1].Label)
	}
	if entries[0].State != string(schedule.StateFailed) || entries[0].Err != "tool missing" {
		t.Fatalf("unexpected failed entry %+v", entries[0])
	}
	if entries[1].Err != "" {
		t.Fatalf("expected empty error for completed entry, got %q", entries[1].Err)
	}
	if !entries[1].StartedAt.Equal(base) {
		t.Fatalf("expected start %v, got %v", base, entries[1].StartedAt)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, session("x", base.Add(time.Duration(i)*time.Hour), schedule.StateCompleted, nil)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestOpenReusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := s.Record(ctx, session("fajr", time.Now().Truncate(time.Second), schedule.StateCompleted, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entries, err := s2.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the recorded session to survive reopen, got %d entries", len(entries))
	}
}
