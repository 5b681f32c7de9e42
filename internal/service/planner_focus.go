package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lifemap/internal/model"
)

// AddToFocusList appends a task to today's plan. Adding a planned task again is a no-op.
func (p *PlannerService) AddToFocusList(ctx context.Context, taskID string) ([]string, error) {
	return p.changeFocus(ctx, "add to focus list", func(focus []string, tasks []model.Task, _ model.DetailMap) ([]string, error) {
		if !containsTask(tasks, taskID) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		for _, id := range focus {
			if id == taskID {
				return focus, nil
			}
		}
		return append(focus, taskID), nil
	})
}

func (p *PlannerService) RemoveFromFocusList(ctx context.Context, taskID string) ([]string, error) {
	return p.changeFocus(ctx, "remove from focus list", func(focus []string, _ []model.Task, _ model.DetailMap) ([]string, error) {
		out, _ := without(focus, taskID)
		return out, nil
	})
}

func (p *PlannerService) ClearFocusList(ctx context.Context) error {
	_, err := p.changeFocus(ctx, "clear focus list", func([]string, []model.Task, model.DetailMap) ([]string, error) {
		return []string{}, nil
	})
	return err
}

func (p *PlannerService) changeFocus(ctx context.Context, op string, fn func(focus []string, tasks []model.Task, details model.DetailMap) ([]string, error)) ([]string, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	user, err := p.userLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	previous := append([]string{}, p.focus...)
	next, err := fn(append([]string{}, p.focus...), p.tasks, p.details)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.focus = next
	p.mu.Unlock()
	p.notify()

	if err := p.write(ctx, op, func(ctx context.Context) error {
		return p.gateway.UpdateFocusList(ctx, user, next)
	}); err != nil {
		p.mu.Lock()
		p.focus = previous
		p.mu.Unlock()
		p.notify()
		return nil, err
	}
	return append([]string{}, next...), nil
}

// MidnightCleanup empties the focus list once per day during the midnight hour.
// It reports whether the cleanup ran.
func (p *PlannerService) MidnightCleanup(ctx context.Context) (bool, error) {
	now := p.Now()
	if now.Hour() != 0 {
		return false, nil
	}
	return p.oncePerDay(ctx, deviceMidnightKey, now, func() error {
		if err := p.ClearFocusList(ctx); err != nil {
			return err
		}
		p.logger.Info("midnight cleanup: focus list cleared")
		return nil
	})
}

// EveningCleanup drops finished tasks from the focus list once per day from 20:00 on.
// Repetitive tasks and large tasks with open subtasks stay.
func (p *PlannerService) EveningCleanup(ctx context.Context) (bool, error) {
	now := p.Now()
	if now.Hour() < 20 {
		return false, nil
	}
	return p.oncePerDay(ctx, deviceEveningKey, now, func() error {
		removed := 0
		_, err := p.changeFocus(ctx, "evening cleanup", func(focus []string, tasks []model.Task, details model.DetailMap) ([]string, error) {
			kept := make([]string, 0, len(focus))
			for _, id := range focus {
				t, ok := findTask(tasks, id)
				if !ok || finished(t, details) {
					removed++
					continue
				}
				kept = append(kept, id)
			}
			return kept, nil
		})
		if err != nil {
			return err
		}
		p.logger.Info("evening cleanup: finished tasks removed", slog.Int("removed", removed))
		return nil
	})
}

// oncePerDay runs fn unless the device marker under key already holds today's date.
func (p *PlannerService) oncePerDay(ctx context.Context, key string, now time.Time, fn func() error) (bool, error) {
	if _, err := p.User(); err != nil {
		return false, err
	}
	today := now.Format(time.DateOnly)
	last, _, err := p.device.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if last == today {
		return false, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	if err := p.device.Set(ctx, key, today); err != nil {
		return true, fmt.Errorf("write %s: %w", key, err)
	}
	return true, nil
}

// finished reports whether a planned task has no work left for today.
func finished(t model.Task, details model.DetailMap) bool {
	switch t.Kind {
	case model.KindRepetitive:
		return false
	case model.KindLarge:
		if t.CompletedAt == nil {
			return false
		}
		d, ok := details[t.ID]
		return !ok || d.OpenSubtasks() == 0
	default:
		return t.CompletedAt != nil
	}
}

// RunMaintenance is the periodic job: midnight cleanup, evening cleanup, then the windowed backup.
func (p *PlannerService) RunMaintenance(ctx context.Context) {
	if _, err := p.User(); err != nil {
		p.logger.Debug("maintenance skipped: no active session")
		return
	}
	if _, err := p.MidnightCleanup(ctx); err != nil {
		p.logger.Error("midnight cleanup failed", slog.String("error", err.Error()))
	}
	if _, err := p.EveningCleanup(ctx); err != nil {
		p.logger.Error("evening cleanup failed", slog.String("error", err.Error()))
	}
	if _, err := p.CreateWindowedBackup(ctx); err != nil {
		p.logger.Error("windowed backup failed", slog.String("error", err.Error()))
	}
}

func containsTask(tasks []model.Task, id string) bool {
	_, ok := findTask(tasks, id)
	return ok
}

func findTask(tasks []model.Task, id string) (model.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}
