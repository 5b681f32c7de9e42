package service

import (
	"context"
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("08:30")
	if err != nil {
		t.Fatalf("buildDailySpec: %v", err)
	}
	if spec != "0 30 8 * * *" {
		t.Fatalf("spec = %q", spec)
	}
	for _, bad := range []string{"8", "24:00", "12:60", "ab:cd"} {
		if _, err := buildDailySpec(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC, quietLogger())
	if _, err := s.ScheduleInterval(0, "noop", func(context.Context) {}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := s.ScheduleInterval(15*time.Minute, "maintenance", func(context.Context) {}); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
}

func TestScheduledJobRuns(t *testing.T) {
	s := NewSchedulerService(time.UTC, quietLogger())
	ran := make(chan struct{}, 1)
	if _, err := s.ScheduleInterval(time.Second, "tick", func(ctx context.Context) {
		if ctx.Err() == nil {
			select {
			case ran <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
}
