package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"aroundtheclock/domain/blocker"
	"aroundtheclock/domain/executor"
	"aroundtheclock/domain/schedule"
)

func TestBuildBlocker(t *testing.T) {
	b, err := BuildBlocker(blocker.BlockerConfig{
		Name:          "arpspoof",
		Type:          blocker.ArpspoofBlockerType,
		Specification: json.RawMessage(`{"Sudo": true}`),
	})
	if err != nil {
		t.Fatalf("BuildBlocker: %v", err)
	}
	if b.GetName() != "arpspoof" {
		t.Fatalf("unexpected blocker name %s", b.GetName())
	}
}

func TestBuildBlockerInvalidType(t *testing.T) {
	if _, err := BuildBlocker(blocker.BlockerConfig{Type: "NFT_BLOCKER"}); err == nil {
		t.Fatal("expected error for unknown blocker type")
	}
}

func TestBuildSourceInvalidType(t *testing.T) {
	if _, err := BuildSource(schedule.SourceConfig{Type: "HTTP_SCHEDULE"}); err == nil {
		t.Fatal("expected error for unknown source type")
	}
}

type fakeSource struct {
	mu   sync.Mutex
	days []time.Time
}

func (f *fakeSource) GetName() string { return "fake" }

func (f *fakeSource) DecodeConfig(schedule.SourceConfig) error { return nil }

func (f *fakeSource) StopAndWait() error { return nil }

// Next returns a one-interval schedule for the first requested day,
// then blocks until cancellation like a producer that has not written
// tomorrow's times yet.
func (f *fakeSource) Next(ctx context.Context, day time.Time) (schedule.Schedule, error) {
	f.mu.Lock()
	f.days = append(f.days, day)
	first := len(f.days) == 1
	f.mu.Unlock()
	if !first {
		<-ctx.Done()
		return schedule.Schedule{}, ctx.Err()
	}
	return schedule.Schedule{Day: day, Intervals: []schedule.BlockInterval{
		{Label: "fajr", Start: time.Now().Add(20 * time.Millisecond), Duration: 30 * time.Millisecond},
	}}, nil
}

type countingBlocker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingBlocker) GetName() string { return "counting" }

func (c *countingBlocker) DecodeConfig(blocker.BlockerConfig) error { return nil }

func (c *countingBlocker) Block(ctx context.Context, t blocker.BlockTarget) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	timer := time.NewTimer(t.Timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func TestRunDayLoopAdvancesToNextDay(t *testing.T) {
	src := &fakeSource{}
	cb := &countingBlocker{}
	ex := executor.New(cb, "eth0", "192.168.0.1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	runDayLoop(ctx, src, ex)

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.days) != 2 {
		t.Fatalf("expected 2 schedule requests, got %d", len(src.days))
	}
	if !src.days[1].Equal(src.days[0].AddDate(0, 0, 1)) {
		t.Fatalf("expected second request for the next day, got %v after %v", src.days[1], src.days[0])
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.calls != 1 {
		t.Fatalf("expected exactly one block run, got %d", cb.calls)
	}
}
