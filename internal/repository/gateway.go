package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lifemap/internal/model"
)

// Gateway is the only component that talks to the document store.
// Every committed write republishes the affected collection to its subscribers.
type Gateway struct {
	db     *gorm.DB
	logger *slog.Logger

	tasks    feed[[]model.Task]
	details  feed[model.DetailMap]
	settings feed[model.UserSettings]
}

func NewGateway(db *gorm.DB, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{db: db, logger: logger}
}

// SubscribeTasks pushes every task the user owns or collaborates on, newest first.
// Read failures push an empty list.
func (g *Gateway) SubscribeTasks(ctx context.Context, user string) *Subscription[[]model.Task] {
	g.logger.Info("subscribe tasks", slog.String("user", user))
	return g.tasks.subscribe(ctx, func(ctx context.Context) []model.Task {
		tasks, err := g.ListTasks(ctx, user)
		if err != nil {
			g.logger.Warn("tasks subscription read failed", slog.String("user", user), slog.String("error", err.Error()))
			return []model.Task{}
		}
		return tasks
	})
}

func (g *Gateway) ListTasks(ctx context.Context, user string) ([]model.Task, error) {
	var tasks []model.Task
	if err := g.db.WithContext(ctx).
		Where("owner = ? OR EXISTS (SELECT 1 FROM json_each(collaborators) WHERE value = ?)", user, user).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (g *Gateway) GetTask(ctx context.Context, id string) (model.Task, error) {
	var task model.Task
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return model.Task{}, fmt.Errorf("get task %s: %w", id, notFound(err))
	}
	return task, nil
}

// AddTask stores a new task and returns its id, generating one when empty.
// Absent optional fields are stored as NULL, never as empty values.
func (g *Gateway) AddTask(ctx context.Context, task model.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task = normalizeTask(task)
	if err := g.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	g.logger.Info("task stored", slog.String("id", task.ID), slog.String("owner", task.Owner))
	g.tasks.publish(ctx)
	return task.ID, nil
}

// UpdateTask writes only the fields the patch touches. Cleared fields become NULL.
func (g *Gateway) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error {
	updates, err := taskAssignments(patch)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if len(updates) == 0 {
		return nil
	}
	res := g.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update task %s: %w", id, ErrNotFound)
	}
	g.tasks.publish(ctx)
	return nil
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	if err := g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	g.logger.Info("task deleted", slog.String("id", id))
	g.tasks.publish(ctx)
	return nil
}

// ReplaceAll overwrites the user's owned tasks, details and focus list in one transaction.
func (g *Gateway) ReplaceAll(ctx context.Context, user string, tasks []model.Task, details model.DetailMap, focus []string) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner = ?", user).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		if err := tx.Where("owner = ?", user).Delete(&model.TaskDetail{}).Error; err != nil {
			return fmt.Errorf("clear details: %w", err)
		}
		for _, t := range tasks {
			t = normalizeTask(t)
			if t.Owner == "" {
				t.Owner = user
			}
			if err := tx.Save(&t).Error; err != nil {
				return fmt.Errorf("restore task %s: %w", t.ID, err)
			}
		}
		for _, key := range details.Keys() {
			d := details[key]
			d.Owner = user
			if err := tx.Save(&d).Error; err != nil {
				return fmt.Errorf("restore detail %s: %w", d.TaskID, err)
			}
		}
		return upsertFocusList(tx, user, focus)
	})
	if err != nil {
		return fmt.Errorf("replace working set: %w", err)
	}
	g.tasks.publish(ctx)
	g.details.publish(ctx)
	g.settings.publish(ctx)
	return nil
}

func normalizeTask(t model.Task) model.Task {
	t = t.Clone()
	t.CreatedAt = t.CreatedAt.UTC()
	utcPtr(&t.DueDate)
	utcPtr(&t.CompletedAt)
	utcPtr(&t.LastCompletedAt)
	if len(t.Collaborators) == 0 {
		t.Collaborators = nil
	}
	return t
}

func utcPtr(p **time.Time) {
	if *p != nil {
		v := (*p).UTC()
		*p = &v
	}
}

// taskAssignments turns a patch into column updates; clearing maps to NULL.
func taskAssignments(p model.TaskPatch) (map[string]any, error) {
	updates := map[string]any{}
	if v, ok := p.Title.Get(); ok {
		updates["title"] = v
	}
	if v, ok := p.Kind.Get(); ok {
		updates["kind"] = string(v)
	}
	if v, ok := p.Priority.Get(); ok {
		updates["priority"] = string(v)
	}
	if v, ok := p.IsHybrid.Get(); ok {
		updates["is_hybrid"] = v
	}
	timeColumn(updates, "due_date", p.DueDate)
	timeColumn(updates, "completed_at", p.CompletedAt)
	timeColumn(updates, "last_completed_at", p.LastCompletedAt)

	if err := jsonColumn(updates, "areas", p.Areas); err != nil {
		return nil, err
	}
	if err := jsonColumn(updates, "position", p.Position); err != nil {
		return nil, err
	}
	if err := jsonColumn(updates, "recurrence", p.Recurrence); err != nil {
		return nil, err
	}
	if err := jsonColumn(updates, "collaborators", p.Collaborators); err != nil {
		return nil, err
	}
	return updates, nil
}

func timeColumn(updates map[string]any, column string, f model.Field[time.Time]) {
	switch {
	case f.IsCleared():
		updates[column] = nil
	case f.IsSet():
		v, _ := f.Get()
		updates[column] = v.UTC()
	}
}

// jsonColumn encodes serializer:json columns by hand; map updates bypass gorm serializers.
func jsonColumn[T any](updates map[string]any, column string, f model.Field[T]) error {
	switch {
	case f.IsCleared():
		updates[column] = nil
	case f.IsSet():
		v, _ := f.Get()
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", column, err)
		}
		updates[column] = string(raw)
	}
	return nil
}
