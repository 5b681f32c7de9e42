package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lifemap/internal/geometry"
	"lifemap/internal/model"
)

// TaskDraft is the caller-supplied part of a new task.
type TaskDraft struct {
	Title         string
	Kind          model.TaskKind
	Priority      model.Priority
	Areas         []model.AreaID
	DueDate       *time.Time
	Position      *model.Point
	Recurrence    *model.Recurrence
	Collaborators []string
}

// AddTask creates a task for the signed-in user. Large tasks get an empty detail document.
func (p *PlannerService) AddTask(ctx context.Context, draft TaskDraft) (model.Task, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return model.Task{}, fmt.Errorf("add task: empty title: %w", ErrValidation)
	}
	if len(draft.Areas) == 0 {
		return model.Task{}, fmt.Errorf("add task: no area selected: %w", ErrValidation)
	}

	p.mu.Lock()
	user, err := p.userLocked()
	if err != nil {
		p.mu.Unlock()
		return model.Task{}, err
	}
	task := model.Task{
		ID:            p.NewID(),
		Owner:         user,
		Title:         title,
		Kind:          draft.Kind,
		Priority:      draft.Priority,
		Areas:         append([]model.AreaID(nil), draft.Areas...),
		IsHybrid:      model.IsHybrid(draft.Areas),
		DueDate:       draft.DueDate,
		Position:      draft.Position,
		CreatedAt:     p.Now(),
		Recurrence:    draft.Recurrence,
		Collaborators: draft.Collaborators,
	}
	if err := task.Validate(); err != nil {
		p.mu.Unlock()
		return model.Task{}, fmt.Errorf("add task: %v: %w", err, ErrValidation)
	}
	if task.Position == nil {
		pos := geometry.DefaultPosition(task.Areas[0], p.cfg.Areas, p.rnd)
		task.Position = &pos
	}
	task = task.Clone()
	p.tasks = append([]model.Task{task}, p.tasks...)
	var detail *model.TaskDetail
	if task.Kind == model.KindLarge {
		d := model.NewTaskDetail(task.ID, user)
		p.details[task.ID] = d
		detail = &d
	}
	p.mu.Unlock()
	p.notify()

	if err := p.write(ctx, "add task", func(ctx context.Context) error {
		_, err := p.gateway.AddTask(ctx, task)
		return err
	}); err != nil {
		p.dropLocal(task.ID)
		return model.Task{}, err
	}
	if detail != nil {
		// the task is already stored; a failed detail write leaves it without one
		if err := p.write(ctx, "add task detail", func(ctx context.Context) error {
			return p.gateway.AddTaskDetail(ctx, *detail)
		}); err != nil {
			return task.Clone(), err
		}
	}
	p.logger.Info("task added", slog.String("id", task.ID), slog.String("type", string(task.Kind)), slog.Bool("hybrid", task.IsHybrid))
	return task.Clone(), nil
}

// UpdateTask applies a partial update. The hybrid flag always follows the resulting areas.
func (p *PlannerService) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.updateTask(ctx, id, patch)
}

func (p *PlannerService) updateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if patch.Title.IsCleared() || patch.Kind.IsCleared() || patch.Priority.IsCleared() || patch.Areas.IsCleared() {
		return model.Task{}, fmt.Errorf("update task %s: required field cleared: %w", id, ErrValidation)
	}
	if v, ok := patch.Title.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return model.Task{}, fmt.Errorf("update task %s: empty title: %w", id, ErrValidation)
		}
		patch.Title = model.Set(v)
	}
	if v, ok := patch.Areas.Get(); ok && len(v) == 0 {
		return model.Task{}, fmt.Errorf("update task %s: no area selected: %w", id, ErrValidation)
	}

	p.mu.Lock()
	user, err := p.userLocked()
	if err != nil {
		p.mu.Unlock()
		return model.Task{}, err
	}
	current, ok := p.taskLocked(id)
	if !ok {
		p.mu.Unlock()
		return model.Task{}, fmt.Errorf("update task %s: %w", id, ErrNotFound)
	}
	areas := current.Areas
	if v, ok := patch.Areas.Get(); ok {
		areas = v
	}
	patch.IsHybrid = model.Set(model.IsHybrid(areas))
	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		p.mu.Unlock()
		return model.Task{}, fmt.Errorf("update task %s: %v: %w", id, err, ErrValidation)
	}
	p.replaceLocked(updated)

	becameLarge := false
	if current.Kind != model.KindLarge && updated.Kind == model.KindLarge {
		if _, has := p.details[id]; !has {
			p.details[id] = model.NewTaskDetail(id, user)
			becameLarge = true
		}
	}
	leftLarge := current.Kind == model.KindLarge && updated.Kind != model.KindLarge
	prevDetail, hadDetail := p.details[id]
	if leftLarge {
		delete(p.details, id)
	}
	p.mu.Unlock()
	p.notify()

	if err := p.write(ctx, "update task", func(ctx context.Context) error {
		return p.gateway.UpdateTask(ctx, id, patch)
	}); err != nil {
		p.mu.Lock()
		p.replaceLocked(current)
		switch {
		case becameLarge:
			delete(p.details, id)
		case leftLarge && hadDetail:
			p.details[id] = prevDetail
		}
		p.mu.Unlock()
		p.notify()
		return model.Task{}, err
	}
	switch {
	case becameLarge:
		if err := p.write(ctx, "add task detail", func(ctx context.Context) error {
			return p.gateway.AddTaskDetail(ctx, model.NewTaskDetail(id, user))
		}); err != nil {
			return updated, err
		}
	case leftLarge:
		if err := p.write(ctx, "delete task detail", func(ctx context.Context) error {
			return p.gateway.DeleteTaskDetail(ctx, id)
		}); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// MoveTask stores a drop position and reassigns areas from it. A drop outside every area only moves the task.
func (p *PlannerService) MoveTask(ctx context.Context, id string, pos model.Point) (model.Task, error) {
	patch := model.TaskPatch{Position: model.Set(pos)}
	if areas := geometry.ResolveAreas(pos, p.cfg.Areas); len(areas) > 0 {
		patch.Areas = model.Set(areas)
	}
	return p.UpdateTask(ctx, id, patch)
}

// DeleteTask removes the task remotely and cascades to its detail, focus entry,
// time blocks and recurrence log.
func (p *PlannerService) DeleteTask(ctx context.Context, id string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.deleteTask(ctx, id)
}

func (p *PlannerService) deleteTask(ctx context.Context, id string) error {
	p.mu.Lock()
	if _, err := p.userLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.cancelPendingLocked(id)
	p.mu.Unlock()

	if err := p.write(ctx, "delete task", func(ctx context.Context) error {
		return p.gateway.DeleteTask(ctx, id)
	}); err != nil {
		return err
	}

	p.mu.Lock()
	user := ""
	if p.sess != nil {
		user = p.sess.user
	}
	_, hadDetail := p.details[id]
	p.removeTaskLocked(id)
	delete(p.details, id)
	delete(p.instances, id)
	p.blocks = filterBlocks(p.blocks, func(b model.TimeBlock) bool { return b.TaskID != id })
	focus, inFocus := without(p.focus, id)
	if inFocus {
		p.focus = focus
	}
	p.mu.Unlock()
	p.notify()

	if hadDetail {
		if err := p.write(ctx, "delete task detail", func(ctx context.Context) error {
			return p.gateway.DeleteTaskDetail(ctx, id)
		}); err != nil {
			return err
		}
	}
	if inFocus && user != "" {
		if err := p.write(ctx, "update focus list", func(ctx context.Context) error {
			return p.gateway.UpdateFocusList(ctx, user, focus)
		}); err != nil {
			return err
		}
	}
	p.logger.Info("task deleted", slog.String("id", id))
	return nil
}

// ToggleTaskComplete flips a task between open and done.
//
// Completing from the focus view only marks the task done. Elsewhere a repetitive
// task is archived and immediately reopened for its next cycle, while one-time and
// large tasks are archived and deleted once the completion delay has passed.
func (p *PlannerService) ToggleTaskComplete(ctx context.Context, id string, fromFocus bool) (model.Task, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	user, err := p.userLocked()
	if err != nil {
		p.mu.Unlock()
		return model.Task{}, err
	}
	task, ok := p.taskLocked(id)
	if !ok {
		p.mu.Unlock()
		return model.Task{}, fmt.Errorf("toggle task %s: %w", id, ErrNotFound)
	}
	now := p.Now()

	var patch model.TaskPatch
	var archiveNow, deleteLater bool
	switch {
	case task.CompletedAt != nil:
		p.cancelPendingLocked(id)
		patch.CompletedAt = model.Clear[time.Time]()
		patch.LastCompletedAt = model.Clear[time.Time]()
	case fromFocus:
		patch.CompletedAt = model.Set(now)
	case task.Kind == model.KindRepetitive:
		archiveNow = true
		patch.CompletedAt = model.Clear[time.Time]()
		patch.LastCompletedAt = model.Set(now)
	default:
		deleteLater = true
		patch.CompletedAt = model.Set(now)
	}
	p.mu.Unlock()

	updated, err := p.updateTask(ctx, id, patch)
	if err != nil {
		return model.Task{}, err
	}

	if archiveNow {
		done := task.Clone()
		done.CompletedAt = &now
		if _, err := p.archive.ArchiveCompletion(ctx, user, done); err != nil {
			// the cycle did not happen, so lastCompletedAt goes back
			revert := model.TaskPatch{LastCompletedAt: model.Clear[time.Time]()}
			if task.LastCompletedAt != nil {
				revert.LastCompletedAt = model.Set(*task.LastCompletedAt)
			}
			if _, rerr := p.updateTask(ctx, id, revert); rerr != nil {
				p.logger.Warn("revert repetitive completion failed", slog.String("id", id), slog.String("error", rerr.Error()))
			}
			return model.Task{}, fmt.Errorf("toggle task %s: %w", id, err)
		}
		p.mu.Lock()
		p.instances[id] = append(p.instances[id], now)
		p.mu.Unlock()
	}

	if deleteLater {
		p.scheduleDelete(id)
	}
	return updated, nil
}

func (p *PlannerService) scheduleDelete(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return
	}
	p.cancelPendingLocked(id)
	pd := &pendingDelete{sess: p.sess}
	p.pending[id] = pd
	pd.timer = time.AfterFunc(p.cfg.CompletionDelay, func() { p.finishCompletion(id, pd) })
}

// finishCompletion re-reads the task after the delay and archives and deletes it if it is still done.
// It holds writeMu throughout, so a toggle-back either lands before the check or after the delete.
func (p *PlannerService) finishCompletion(id string, pd *pendingDelete) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if p.pending[id] != pd || p.sess != pd.sess {
		p.mu.Unlock()
		return
	}
	delete(p.pending, id)
	task, ok := p.taskLocked(id)
	if !ok || task.CompletedAt == nil {
		p.mu.Unlock()
		return
	}
	sess := pd.sess
	sess.wg.Add(1)
	p.mu.Unlock()
	defer sess.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := p.archive.ArchiveCompletion(ctx, sess.user, task.Clone()); err != nil {
		p.logger.Error("archive completed task failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	if err := p.deleteTask(ctx, id); err != nil {
		p.logger.Error("delete completed task failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

func (p *PlannerService) cancelPendingLocked(id string) {
	if pd, ok := p.pending[id]; ok {
		pd.stop()
		delete(p.pending, id)
	}
}

func (p *PlannerService) replaceLocked(t model.Task) {
	for i := range p.tasks {
		if p.tasks[i].ID == t.ID {
			p.tasks[i] = t
			return
		}
	}
}

func (p *PlannerService) removeTaskLocked(id string) {
	out := p.tasks[:0:0]
	for _, t := range p.tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	p.tasks = out
}

// dropLocal undoes an optimistic insert after a failed write.
func (p *PlannerService) dropLocal(id string) {
	p.mu.Lock()
	p.removeTaskLocked(id)
	delete(p.details, id)
	p.mu.Unlock()
	p.notify()
}

func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	found := false
	for _, v := range ids {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	return out, found
}
