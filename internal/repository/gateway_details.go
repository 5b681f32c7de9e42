package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lifemap/internal/model"
)

// SubscribeTaskDetails pushes the user's details keyed by task id.
func (g *Gateway) SubscribeTaskDetails(ctx context.Context, user string) *Subscription[model.DetailMap] {
	g.logger.Info("subscribe task details", slog.String("user", user))
	return g.details.subscribe(ctx, func(ctx context.Context) model.DetailMap {
		details, err := g.ListTaskDetails(ctx, user)
		if err != nil {
			g.logger.Warn("details subscription read failed", slog.String("user", user), slog.String("error", err.Error()))
			return model.DetailMap{}
		}
		return details
	})
}

func (g *Gateway) ListTaskDetails(ctx context.Context, user string) (model.DetailMap, error) {
	var rows []model.TaskDetail
	if err := g.db.WithContext(ctx).Where("owner = ?", user).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list task details: %w", err)
	}
	return model.DetailMapFromList(rows), nil
}

// AddTaskDetail stores the detail document of a large task. A task has at most one.
func (g *Gateway) AddTaskDetail(ctx context.Context, detail model.TaskDetail) error {
	if detail.Subtasks == nil {
		detail.Subtasks = []model.Subtask{}
	}
	if detail.Milestones == nil {
		detail.Milestones = []model.Milestone{}
	}
	if err := g.db.WithContext(ctx).Create(&detail).Error; err != nil {
		return fmt.Errorf("create task detail %s: %w", detail.TaskID, err)
	}
	g.details.publish(ctx)
	return nil
}

// UpdateTaskDetail writes whole fields of the detail owned by taskID.
func (g *Gateway) UpdateTaskDetail(ctx context.Context, taskID string, patch model.DetailPatch) error {
	updates := map[string]any{}
	if v, ok := patch.Goal.Get(); ok {
		updates["goal"] = v
	}
	if v, ok := patch.Progress.Get(); ok {
		updates["progress"] = v
	}
	if v, ok := patch.Subtasks.Get(); ok {
		raw, err := json.Marshal(nonNil(v))
		if err != nil {
			return fmt.Errorf("encode subtasks: %w", err)
		}
		updates["subtasks"] = string(raw)
	}
	if v, ok := patch.Milestones.Get(); ok {
		raw, err := json.Marshal(nonNil(v))
		if err != nil {
			return fmt.Errorf("encode milestones: %w", err)
		}
		updates["milestones"] = string(raw)
	}
	if len(updates) == 0 {
		return nil
	}
	res := g.db.WithContext(ctx).Model(&model.TaskDetail{}).Where("task_id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update task detail %s: %w", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update task detail %s: %w", taskID, ErrNotFound)
	}
	g.details.publish(ctx)
	return nil
}

func (g *Gateway) DeleteTaskDetail(ctx context.Context, taskID string) error {
	if err := g.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.TaskDetail{}).Error; err != nil {
		return fmt.Errorf("delete task detail %s: %w", taskID, err)
	}
	g.details.publish(ctx)
	return nil
}

// SubscribeUserSettings pushes the user's settings; a missing document reads as an empty focus list.
func (g *Gateway) SubscribeUserSettings(ctx context.Context, user string) *Subscription[model.UserSettings] {
	g.logger.Info("subscribe user settings", slog.String("user", user))
	return g.settings.subscribe(ctx, func(ctx context.Context) model.UserSettings {
		settings, err := g.GetUserSettings(ctx, user)
		if err != nil {
			g.logger.Warn("settings subscription read failed", slog.String("user", user), slog.String("error", err.Error()))
			return model.UserSettings{Username: user, FocusList: []string{}}
		}
		return settings
	})
}

func (g *Gateway) GetUserSettings(ctx context.Context, user string) (model.UserSettings, error) {
	var settings model.UserSettings
	err := g.db.WithContext(ctx).Where("username = ?", user).First(&settings).Error
	switch {
	case err == nil:
		if settings.FocusList == nil {
			settings.FocusList = []string{}
		}
		return settings, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.UserSettings{Username: user, FocusList: []string{}}, nil
	default:
		return model.UserSettings{}, fmt.Errorf("get user settings: %w", err)
	}
}

// UpdateFocusList replaces the stored focus list.
func (g *Gateway) UpdateFocusList(ctx context.Context, user string, ids []string) error {
	if err := upsertFocusList(g.db.WithContext(ctx), user, ids); err != nil {
		return err
	}
	g.logger.Info("focus list stored", slog.String("user", user), slog.Int("items", len(ids)))
	g.settings.publish(ctx)
	return nil
}

// InitializeUserSettings creates the settings document if missing and refreshes last-seen.
// An existing focus list is never touched.
func (g *Gateway) InitializeUserSettings(ctx context.Context, user string, now time.Time) error {
	settings := model.UserSettings{Username: user, FocusList: []string{}, LastSeenAt: now.UTC()}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}).Create(&settings).Error
	if err != nil {
		return fmt.Errorf("initialize user settings: %w", err)
	}
	g.settings.publish(ctx)
	return nil
}

func upsertFocusList(db *gorm.DB, user string, ids []string) error {
	settings := model.UserSettings{Username: user, FocusList: nonNil(ids)}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"focus_list"}),
	}).Create(&settings).Error
	if err != nil {
		return fmt.Errorf("update focus list: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
