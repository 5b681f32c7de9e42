package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"lifemap/internal/model"
	"lifemap/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	planner   *PlannerService
	archive   *ArchiveService
	gateway   *repository.Gateway
	archives  *repository.ArchiveRepository
	completed *repository.CompletedTaskRepository
	device    *repository.DeviceRepository
	clock     *fakeClock
}

const testUser = "Mateo"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds a planner over a fresh sqlite file with the clock at noon.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC), nil)
}

func newTestEnvWith(t *testing.T, now time.Time, wrap func(*repository.Gateway) Gateway) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "lifemap.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	logger := quietLogger()
	clock := &fakeClock{now: now}
	gw := repository.NewGateway(db, logger)
	archives := repository.NewArchiveRepository(db)
	completed := repository.NewCompletedTaskRepository(db)
	device := repository.NewDeviceRepository(db)

	archive := NewArchiveService(archives, completed, logger, 5)
	archive.Now = clock.Now

	var g Gateway = gw
	if wrap != nil {
		g = wrap(gw)
	}
	planner := NewPlannerService(g, archive, device, logger, PlannerConfig{
		Users:           []string{testUser, "roman", "george", "Juan"},
		CompletionDelay: 30 * time.Millisecond,
	})
	planner.Now = clock.Now
	t.Cleanup(planner.Shutdown)

	return &testEnv{
		planner:   planner,
		archive:   archive,
		gateway:   gw,
		archives:  archives,
		completed: completed,
		device:    device,
		clock:     clock,
	}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	if err := e.planner.Initialize(context.Background(), testUser); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func (e *testEnv) addTask(t *testing.T, title string, kind model.TaskKind, areas ...model.AreaID) model.Task {
	t.Helper()
	task, err := e.planner.AddTask(context.Background(), TaskDraft{
		Title:    title,
		Kind:     kind,
		Priority: model.PriorityMedium,
		Areas:    areas,
	})
	if err != nil {
		t.Fatalf("AddTask(%q): %v", title, err)
	}
	return task
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits until the planner's copies match what the gateway stores.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	waitFor(t, "planner to catch up with the store", func() bool {
		stored, err := e.gateway.ListTasks(ctx, testUser)
		if err != nil {
			return false
		}
		details, err := e.gateway.ListTaskDetails(ctx, testUser)
		if err != nil {
			return false
		}
		settings, err := e.gateway.GetUserSettings(ctx, testUser)
		if err != nil {
			return false
		}
		return sameJSON(byID(stored), byID(e.planner.Tasks())) &&
			sameJSON(details, e.planner.TaskDetails()) &&
			sameJSON(settings.FocusList, e.planner.FocusList())
	})
}

func byID(tasks []model.Task) []model.Task {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

func sameJSON(a, b any) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(x) == string(y)
}
