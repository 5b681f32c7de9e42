package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifemap/internal/model"
)

func TestBackupWindow(t *testing.T) {
	cases := []struct {
		hour int
		want model.SnapshotType
		ok   bool
	}{
		{5, "", false},
		{6, model.SnapshotMorning, true},
		{9, model.SnapshotMorning, true},
		{10, "", false},
		{17, "", false},
		{18, model.SnapshotEvening, true},
		{21, model.SnapshotEvening, true},
		{22, "", false},
		{0, "", false},
	}
	for _, tc := range cases {
		got, ok := BackupWindow(tc.hour)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("BackupWindow(%d) = %q %v, want %q %v", tc.hour, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWindowedBackupOncePerWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tasks := []model.Task{{ID: "t1", Title: "A", Kind: model.KindOneTime, Priority: model.PriorityLow, Areas: []model.AreaID{model.AreaSport}}}

	env.clock.Set(time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC))
	if snap, err := env.archive.MaybeCreateWindowedBackup(ctx, testUser, tasks, model.DetailMap{}, nil); err != nil || snap != nil {
		t.Fatalf("backup outside window: %v %v", snap, err)
	}

	env.clock.Set(time.Date(2025, 3, 5, 18, 5, 0, 0, time.UTC))
	snap, err := env.archive.MaybeCreateWindowedBackup(ctx, testUser, tasks, model.DetailMap{}, []string{"t1"})
	if err != nil || snap == nil {
		t.Fatalf("evening backup: %v %v", snap, err)
	}
	if snap.Type != model.SnapshotEvening || len(snap.Tasks) != 1 || len(snap.FocusList) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	env.clock.Set(time.Date(2025, 3, 5, 21, 0, 0, 0, time.UTC))
	if again, err := env.archive.MaybeCreateWindowedBackup(ctx, testUser, tasks, model.DetailMap{}, nil); err != nil || again != nil {
		t.Fatalf("second evening backup: %v %v", again, err)
	}

	env.clock.Set(time.Date(2025, 3, 6, 18, 30, 0, 0, time.UTC))
	if next, err := env.archive.MaybeCreateWindowedBackup(ctx, testUser, tasks, model.DetailMap{}, nil); err != nil || next == nil {
		t.Fatalf("next day's evening backup: %v %v", next, err)
	}
}

func TestSnapshotRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	var last *model.ArchiveSnapshot
	for i := 0; i < 7; i++ {
		env.clock.Set(base.Add(time.Duration(i) * time.Minute))
		snap, err := env.archive.CreateManualSnapshot(ctx, testUser, nil, nil, nil)
		if err != nil {
			t.Fatalf("CreateManualSnapshot: %v", err)
		}
		last = snap
	}

	list, err := env.archive.ListBackups(ctx, testUser)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("kept %d snapshots, want 5", len(list))
	}
	if list[0].ID != last.ID {
		t.Fatalf("newest snapshot not first")
	}
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.archive.Restore(context.Background(), testUser, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiveCompletionRequiresCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := model.Task{ID: "t1", Title: "A", Kind: model.KindOneTime}
	if _, err := env.archive.ArchiveCompletion(ctx, testUser, task); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	done := env.clock.Now()
	task.CompletedAt = &done
	rec, err := env.archive.ArchiveCompletion(ctx, testUser, task)
	if err != nil {
		t.Fatalf("ArchiveCompletion: %v", err)
	}
	if rec.TaskID != "t1" || rec.WasRepetitive {
		t.Fatalf("unexpected record: %+v", rec)
	}
	history, err := env.archive.History(ctx, testUser, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d records, want 1", len(history))
	}
}

func TestCompletionStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Wednesday; the week started on Sunday 2025-03-02.
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	env.clock.Set(now)
	completions := []time.Time{
		now.Add(-time.Hour),                          // today
		time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC),  // Sunday, this week
		time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),  // Saturday, last week, this month
		time.Date(2025, 2, 27, 8, 0, 0, 0, time.UTC), // last month
	}
	for i, at := range completions {
		at := at
		task := model.Task{ID: string(rune('a' + i)), Title: "t", Kind: model.KindOneTime, CompletedAt: &at}
		if _, err := env.archive.ArchiveCompletion(ctx, testUser, task); err != nil {
			t.Fatalf("ArchiveCompletion: %v", err)
		}
	}

	stats, err := env.archive.Stats(ctx, testUser)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := model.CompletionStats{Today: 1, ThisWeek: 2, ThisMonth: 3, Total: 4}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
