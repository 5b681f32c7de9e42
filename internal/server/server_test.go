package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lifemap/internal/repository"
	"lifemap/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	archive := service.NewArchiveService(repository.NewArchiveRepository(db), repository.NewCompletedTaskRepository(db), logger, 30)
	planner := service.NewPlannerService(repository.NewGateway(db, logger), archive, repository.NewDeviceRepository(db), logger, service.PlannerConfig{
		Users:           []string{"Mateo", "roman"},
		CompletionDelay: time.Minute,
	})
	noon := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	planner.Now = func() time.Time { return noon }
	archive.Now = planner.Now
	t.Cleanup(planner.Shutdown)

	return New(planner, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

type taskPayload struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Areas       []string   `json:"areas"`
	IsHybrid    bool       `json:"isHybrid"`
	DueDate     *time.Time `json:"dueDate"`
	CompletedAt *time.Time `json:"completedAt"`
}

func decodeTask(t *testing.T, body map[string]json.RawMessage) taskPayload {
	t.Helper()
	var task taskPayload
	if err := json.Unmarshal(body["task"], &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func login(t *testing.T, srv *Server) {
	t.Helper()
	if code, _ := doJSON(t, srv, http.MethodPost, "/api/session", map[string]string{"username": "Mateo"}); code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
}

func TestHealthAndSession(t *testing.T) {
	srv := newTestServer(t)

	if code, _ := doJSON(t, srv, http.MethodGet, "/api/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	if code, _ := doJSON(t, srv, http.MethodGet, "/api/tasks", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("tasks before login = %d, want 503", code)
	}
	if code, _ := doJSON(t, srv, http.MethodPost, "/api/session", map[string]string{"username": "mallory"}); code != http.StatusForbidden {
		t.Fatalf("unknown user login = %d, want 403", code)
	}
	login(t, srv)

	code, body := doJSON(t, srv, http.MethodGet, "/api/session", nil)
	if code != http.StatusOK || string(body["user"]) != `"Mateo"` {
		t.Fatalf("session = %d %s", code, body["user"])
	}
	code, body = doJSON(t, srv, http.MethodGet, "/api/areas", nil)
	var areas []map[string]any
	if err := json.Unmarshal(body["areas"], &areas); err != nil || code != http.StatusOK || len(areas) != 5 {
		t.Fatalf("areas = %d %v %v", code, len(areas), err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)
	login(t, srv)

	code, _ := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{"title": "", "type": "one-time", "priority": "low", "areas": []string{"leisure"}})
	if code != http.StatusBadRequest {
		t.Fatalf("empty title = %d, want 400", code)
	}

	code, body := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{
		"title": "Buy milk", "type": "one-time", "priority": "low",
		"areas": []string{"leisure"}, "dueDate": "2025-03-07T00:00:00Z",
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	task := decodeTask(t, body)
	if task.IsHybrid || task.DueDate == nil {
		t.Fatalf("unexpected created task: %+v", task)
	}

	code, body = doJSON(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{
		"dueDate": nil,
		"areas":   []string{"school", "sport"},
	})
	if code != http.StatusOK {
		t.Fatalf("patch = %d", code)
	}
	patched := decodeTask(t, body)
	if !patched.IsHybrid || patched.DueDate != nil || patched.Title != "Buy milk" {
		t.Fatalf("patch result: %+v", patched)
	}

	code, body = doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/move", map[string]float64{"x": 280, "y": 220})
	if code != http.StatusOK {
		t.Fatalf("move = %d", code)
	}
	if moved := decodeTask(t, body); len(moved.Areas) == 0 || moved.Areas[0] != "school" {
		t.Fatalf("move result: %+v", moved)
	}

	code, body = doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/toggle?from=focus", nil)
	if code != http.StatusOK || decodeTask(t, body).CompletedAt == nil {
		t.Fatalf("toggle = %d %s", code, body["task"])
	}

	if code, _ := doJSON(t, srv, http.MethodPatch, "/api/tasks/missing", map[string]any{"title": "x"}); code != http.StatusNotFound {
		t.Fatalf("patch missing = %d, want 404", code)
	}
	if code, _ := doJSON(t, srv, http.MethodDelete, "/api/tasks/"+task.ID, nil); code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := doJSON(t, srv, http.MethodGet, "/api/tasks/"+task.ID, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted = %d, want 404", code)
	}
}

func TestProjectDetailRoutes(t *testing.T) {
	srv := newTestServer(t)
	login(t, srv)

	_, body := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{
		"title": "Launch shop", "type": "large", "priority": "high", "areas": []string{"business"},
	})
	task := decodeTask(t, body)

	code, body := doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/subtasks", map[string]string{"title": "Pick a name"})
	if code != http.StatusCreated {
		t.Fatalf("add subtask = %d", code)
	}
	var subtask struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body["subtask"], &subtask); err != nil {
		t.Fatalf("decode subtask: %v", err)
	}

	code, body = doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/subtasks/"+subtask.ID+"/toggle", nil)
	if code != http.StatusOK {
		t.Fatalf("toggle subtask = %d", code)
	}
	var detail struct {
		Progress int `json:"progress"`
	}
	if err := json.Unmarshal(body["detail"], &detail); err != nil || detail.Progress != 100 {
		t.Fatalf("progress = %d (%v)", detail.Progress, err)
	}

	if code, _ := doJSON(t, srv, http.MethodPut, "/api/tasks/"+task.ID+"/detail/goal", map[string]string{"goal": "First sale"}); code != http.StatusOK {
		t.Fatalf("set goal = %d", code)
	}
	if code, _ := doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/milestones", map[string]string{"title": "Website live"}); code != http.StatusCreated {
		t.Fatalf("add milestone = %d", code)
	}
	code, body = doJSON(t, srv, http.MethodGet, "/api/tasks/"+task.ID+"/detail", nil)
	if code != http.StatusOK {
		t.Fatalf("get detail = %d", code)
	}
	var timeline []map[string]any
	if err := json.Unmarshal(body["timeline"], &timeline); err != nil || len(timeline) != 2 {
		t.Fatalf("timeline = %v (%v)", timeline, err)
	}
	if code, _ := doJSON(t, srv, http.MethodDelete, "/api/tasks/"+task.ID+"/subtasks/nope", nil); code != http.StatusNotFound {
		t.Fatalf("delete unknown subtask = %d, want 404", code)
	}
}

func TestFocusAndBackups(t *testing.T) {
	srv := newTestServer(t)
	login(t, srv)

	_, body := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]any{
		"title": "Gym", "type": "one-time", "priority": "medium", "areas": []string{"sport"},
	})
	task := decodeTask(t, body)

	if code, _ := doJSON(t, srv, http.MethodPost, "/api/focus", map[string]string{"taskId": task.ID}); code != http.StatusOK {
		t.Fatalf("add focus = %d", code)
	}
	code, body := doJSON(t, srv, http.MethodGet, "/api/focus", nil)
	var focus []string
	if err := json.Unmarshal(body["focusList"], &focus); err != nil || code != http.StatusOK || len(focus) != 1 {
		t.Fatalf("focus = %d %v %v", code, focus, err)
	}

	code, body = doJSON(t, srv, http.MethodPost, "/api/backups", nil)
	if code != http.StatusCreated {
		t.Fatalf("create backup = %d", code)
	}
	var backup struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body["backup"], &backup); err != nil || backup.ID == "" {
		t.Fatalf("decode backup: %v", err)
	}

	if code, _ := doJSON(t, srv, http.MethodDelete, "/api/focus/"+task.ID, nil); code != http.StatusOK {
		t.Fatalf("remove focus = %d", code)
	}
	if code, _ := doJSON(t, srv, http.MethodPost, "/api/backups/"+backup.ID+"/restore", nil); code != http.StatusConflict {
		t.Fatalf("restore without confirm = %d, want 409", code)
	}
	if code, _ := doJSON(t, srv, http.MethodPost, "/api/backups/"+backup.ID+"/restore?confirm=true", nil); code != http.StatusOK {
		t.Fatalf("restore = %d", code)
	}
	_, body = doJSON(t, srv, http.MethodGet, "/api/focus", nil)
	focus = nil
	if err := json.Unmarshal(body["focusList"], &focus); err != nil || len(focus) != 1 || focus[0] != task.ID {
		t.Fatalf("focus after restore = %v (%v)", focus, err)
	}

	if code, _ := doJSON(t, srv, http.MethodGet, "/api/stats", nil); code != http.StatusOK {
		t.Fatalf("stats = %d", code)
	}
	if code, _ := doJSON(t, srv, http.MethodGet, "/api/history?limit=x", nil); code != http.StatusBadRequest {
		t.Fatalf("history with bad limit = %d, want 400", code)
	}
}

func TestViewRoutes(t *testing.T) {
	srv := newTestServer(t)

	if code, _ := doJSON(t, srv, http.MethodPut, "/api/view", map[string]any{"view": "kanban"}); code != http.StatusBadRequest {
		t.Fatalf("bad view = %d, want 400", code)
	}
	code, body := doJSON(t, srv, http.MethodPut, "/api/view", map[string]any{"view": "calendar", "dailyPlanning": true})
	if code != http.StatusOK || string(body["view"]) != `"calendar"` || string(body["dailyPlanning"]) != "true" {
		t.Fatalf("set view = %d %v", code, body)
	}
}
