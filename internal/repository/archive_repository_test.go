package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lifemap/internal/model"
)

func TestArchiveRepositoryRangeAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewArchiveRepository(newTestDB(t))
	base := time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		snap := &model.ArchiveSnapshot{
			ID:        fmt.Sprintf("s%d", i),
			Owner:     "Mateo",
			Timestamp: base.AddDate(0, 0, i),
			Type:      model.SnapshotMorning,
			Tasks:     []model.Task{},
			FocusList: []string{},
		}
		if err := repo.Create(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	ok, err := repo.ExistsInRange(ctx, "Mateo", model.SnapshotMorning, day, day.AddDate(0, 0, 1))
	if err != nil || !ok {
		t.Fatalf("expected morning snapshot on %s: ok=%t err=%v", day, ok, err)
	}
	ok, err = repo.ExistsInRange(ctx, "Mateo", model.SnapshotEvening, day, day.AddDate(0, 0, 1))
	if err != nil || ok {
		t.Fatalf("no evening snapshot expected: ok=%t err=%v", ok, err)
	}

	removed, err := repo.Prune(ctx, "Mateo", 3)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	list, err := repo.ListRecent(ctx, "Mateo", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != "s4" || list[2].ID != "s2" {
		t.Fatalf("unexpected survivors: %v", ids(list))
	}
}

func ids(snaps []model.ArchiveSnapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func TestCompletedTaskRepositoryCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewCompletedTaskRepository(newTestDB(t))
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{now, now.AddDate(0, 0, -1), now.AddDate(0, -1, 0)} {
		rec := &model.CompletedTaskArchive{
			ID:          fmt.Sprintf("c%d", i),
			Owner:       "Mateo",
			TaskID:      "t",
			Title:       "run",
			Kind:        model.KindRepetitive,
			Priority:    model.PriorityLow,
			Areas:       []model.AreaID{model.AreaSport},
			CreatedAt:   now.AddDate(0, -2, 0),
			CompletedAt: at,
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	today, err := repo.CountSince(ctx, "Mateo", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	if err != nil || today != 1 {
		t.Fatalf("today = %d, err %v", today, err)
	}
	total, err := repo.CountSince(ctx, "Mateo", time.Time{})
	if err != nil || total != 3 {
		t.Fatalf("total = %d, err %v", total, err)
	}
	recent, err := repo.ListRecent(ctx, "Mateo", 2)
	if err != nil || len(recent) != 2 || recent[0].ID != "c0" {
		t.Fatalf("unexpected recent list %+v, err %v", recent, err)
	}
}

func TestDeviceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDeviceRepository(newTestDB(t))

	if _, ok, err := repo.Get(ctx, "mindmap-username"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%t err=%v", ok, err)
	}
	if err := repo.Set(ctx, "mindmap-username", "Mateo"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, "mindmap-username", "roman"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := repo.Get(ctx, "mindmap-username")
	if err != nil || !ok || v != "roman" {
		t.Fatalf("got %q ok=%t err=%v", v, ok, err)
	}
}
