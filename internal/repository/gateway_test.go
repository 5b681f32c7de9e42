package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"lifemap/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("no push received")
	}
	var zero T
	return zero
}

func sampleTask(owner, title string) model.Task {
	return model.Task{
		Owner:     owner,
		Title:     title,
		Kind:      model.KindOneTime,
		Priority:  model.PriorityLow,
		Areas:     []model.AreaID{model.AreaLeisure},
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSubscribeTasksPushesCurrentStateAndChanges(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	sub := gw.SubscribeTasks(ctx, "Mateo")
	defer sub.Close()
	if got := receive(t, sub.C); len(got) != 0 {
		t.Fatalf("expected empty initial push, got %d tasks", len(got))
	}

	older := sampleTask("Mateo", "older")
	newer := sampleTask("Mateo", "newer")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	if _, err := gw.AddTask(ctx, older); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := gw.AddTask(ctx, newer); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := receive(t, sub.C)
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].Title != "newer" || got[1].Title != "older" {
		t.Fatalf("expected newest first, got %q, %q", got[0].Title, got[1].Title)
	}
}

func TestSubscribeTasksIncludesCollaborations(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	shared := sampleTask("roman", "shared")
	shared.Collaborators = []string{"Mateo"}
	if _, err := gw.AddTask(ctx, shared); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.AddTask(ctx, sampleTask("george", "private")); err != nil {
		t.Fatal(err)
	}

	sub := gw.SubscribeTasks(ctx, "Mateo")
	defer sub.Close()
	got := receive(t, sub.C)
	if len(got) != 1 || got[0].Title != "shared" {
		t.Fatalf("expected only the shared task, got %+v", got)
	}
}

func TestListTasksMatchesCollaboratorsExactly(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	for title, collaborators := range map[string][]string{
		"lower case": {"mateo"},
		"wildcard":   {"Mat_o"},
		"percent":    {"%"},
		"exact":      {"roman", "Mateo"},
	} {
		task := sampleTask("george", title)
		task.Collaborators = collaborators
		if _, err := gw.AddTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	got, err := gw.ListTasks(ctx, "Mateo")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 1 || got[0].Title != "exact" {
		t.Fatalf("expected only the exact collaboration, got %+v", got)
	}
	if got, err := gw.ListTasks(ctx, "M%"); err != nil || len(got) != 0 {
		t.Fatalf("ListTasks(M%%) = %+v, %v", got, err)
	}
}

func TestUpdateTaskClearsAndKeepsFields(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	task := sampleTask("Mateo", "essay")
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	task.DueDate = &due
	task.Position = &model.Point{X: 10, Y: 20}
	id, err := gw.AddTask(ctx, task)
	if err != nil {
		t.Fatal(err)
	}

	err = gw.UpdateTask(ctx, id, model.TaskPatch{
		DueDate: model.Clear[time.Time](),
		Areas:   model.Set([]model.AreaID{model.AreaSchool, model.AreaBusiness}),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := gw.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.DueDate != nil {
		t.Fatalf("due date should be removed, got %v", got.DueDate)
	}
	if got.Position == nil || got.Position.X != 10 {
		t.Fatalf("position must survive an update that does not mention it, got %v", got.Position)
	}
	if len(got.Areas) != 2 || got.Areas[1] != model.AreaBusiness {
		t.Fatalf("areas not updated: %v", got.Areas)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	gw := NewGateway(newTestDB(t), nil)
	err := gw.UpdateTask(context.Background(), "missing", model.TaskPatch{Title: model.Set("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := gw.GetTask(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskDetailLifecycle(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	sub := gw.SubscribeTaskDetails(ctx, "Mateo")
	defer sub.Close()
	receive(t, sub.C)

	if err := gw.AddTaskDetail(ctx, model.NewTaskDetail("t1", "Mateo")); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, sub.C); len(got) != 1 {
		t.Fatalf("expected one detail, got %d", len(got))
	}

	subtasks := []model.Subtask{{ID: "s1", Title: "draft", Done: true, Order: 0}}
	if err := gw.UpdateTaskDetail(ctx, "t1", model.DetailPatch{Subtasks: model.Set(subtasks), Progress: model.Set(100)}); err != nil {
		t.Fatal(err)
	}
	got := receive(t, sub.C)
	if d := got["t1"]; d.Progress != 100 || len(d.Subtasks) != 1 || !d.Subtasks[0].Done {
		t.Fatalf("detail not updated: %+v", d)
	}

	if err := gw.DeleteTaskDetail(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, sub.C); len(got) != 0 {
		t.Fatalf("detail should be gone, got %v", got)
	}
}

func TestInitializeUserSettingsKeepsFocusList(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := gw.InitializeUserSettings(ctx, "Mateo", now); err != nil {
		t.Fatal(err)
	}
	if err := gw.UpdateFocusList(ctx, "Mateo", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := gw.InitializeUserSettings(ctx, "Mateo", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	settings, err := gw.GetUserSettings(ctx, "Mateo")
	if err != nil {
		t.Fatal(err)
	}
	if len(settings.FocusList) != 2 || settings.FocusList[0] != "a" {
		t.Fatalf("focus list clobbered: %v", settings.FocusList)
	}
	if !settings.LastSeenAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("last seen not refreshed: %v", settings.LastSeenAt)
	}
}

func TestGetUserSettingsMissingDocument(t *testing.T) {
	gw := NewGateway(newTestDB(t), nil)
	settings, err := gw.GetUserSettings(context.Background(), "Juan")
	if err != nil {
		t.Fatal(err)
	}
	if settings.FocusList == nil || len(settings.FocusList) != 0 {
		t.Fatalf("expected empty focus list, got %v", settings.FocusList)
	}
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(newTestDB(t), nil)

	if _, err := gw.AddTask(ctx, sampleTask("Mateo", "stale")); err != nil {
		t.Fatal(err)
	}
	restored := sampleTask("Mateo", "restored")
	restored.ID = "r1"
	restored.Kind = model.KindLarge
	details := model.DetailMap{"r1": model.NewTaskDetail("r1", "Mateo")}

	if err := gw.ReplaceAll(ctx, "Mateo", []model.Task{restored}, details, []string{"r1"}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	tasks, err := gw.ListTasks(ctx, "Mateo")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != "r1" {
		t.Fatalf("expected only the restored task, got %+v", tasks)
	}
	got, err := gw.ListTaskDetails(ctx, "Mateo")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["r1"]; !ok {
		t.Fatalf("restored detail missing")
	}
	settings, _ := gw.GetUserSettings(ctx, "Mateo")
	if len(settings.FocusList) != 1 || settings.FocusList[0] != "r1" {
		t.Fatalf("focus list not restored: %v", settings.FocusList)
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := NewGateway(newTestDB(t), nil)

	sub := gw.SubscribeTasks(ctx, "Mateo")
	receive(t, sub.C)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for gw.tasks.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("channel should be closed")
	}
	sub.Close()
}

func TestTaskAssignments(t *testing.T) {
	updates, err := taskAssignments(model.TaskPatch{
		Title:       model.Set("new"),
		CompletedAt: model.Clear[time.Time](),
		Recurrence:  model.Set(model.Recurrence{Interval: model.IntervalDaily}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updates["title"] != "new" {
		t.Fatalf("title missing: %v", updates)
	}
	if v, ok := updates["completed_at"]; !ok || v != nil {
		t.Fatalf("completed_at should be an explicit NULL, got %v (present=%t)", v, ok)
	}
	if updates["recurrence"] != `{"interval":"daily"}` {
		t.Fatalf("recurrence encoded as %v", updates["recurrence"])
	}
	if _, ok := updates["due_date"]; ok {
		t.Fatalf("untouched fields must not be written")
	}
}
