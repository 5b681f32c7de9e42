package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"lifemap/internal/model"
)

// SubtaskPatch edits a subtask. Done is changed through ToggleSubtask.
type SubtaskPatch struct {
	Title   model.Field[string]    `json:"title"`
	DueDate model.Field[time.Time] `json:"dueDate"`
}

// MilestonePatch edits a milestone.
type MilestonePatch struct {
	Title      model.Field[string]    `json:"title"`
	TargetDate model.Field[time.Time] `json:"targetDate"`
	Completed  model.Field[bool]      `json:"completed"`
}

// mutateDetail applies fn to a copy of the task's detail and writes the returned patch.
func (p *PlannerService) mutateDetail(ctx context.Context, op, taskID string, fn func(d *model.TaskDetail) (model.DetailPatch, error)) (model.TaskDetail, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if _, err := p.userLocked(); err != nil {
		p.mu.Unlock()
		return model.TaskDetail{}, err
	}
	current, ok := p.details[taskID]
	if !ok {
		p.mu.Unlock()
		return model.TaskDetail{}, fmt.Errorf("%s: detail of task %s: %w", op, taskID, ErrNotFound)
	}
	next := current.Clone()
	patch, err := fn(&next)
	if err != nil {
		p.mu.Unlock()
		return model.TaskDetail{}, fmt.Errorf("%s: %w", op, err)
	}
	next = patch.Apply(current)
	p.details[taskID] = next
	p.mu.Unlock()
	p.notify()

	if err := p.write(ctx, op, func(ctx context.Context) error {
		return p.gateway.UpdateTaskDetail(ctx, taskID, patch)
	}); err != nil {
		p.mu.Lock()
		if _, still := p.details[taskID]; still {
			p.details[taskID] = current
		}
		p.mu.Unlock()
		p.notify()
		return model.TaskDetail{}, err
	}
	return next.Clone(), nil
}

// subtaskPatch writes the subtask list together with the progress derived from it.
func subtaskPatch(subtasks []model.Subtask) model.DetailPatch {
	return model.DetailPatch{
		Subtasks: model.Set(subtasks),
		Progress: model.Set(model.ComputeProgress(subtasks)),
	}
}

func (p *PlannerService) AddSubtask(ctx context.Context, taskID, title string) (model.Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Subtask{}, fmt.Errorf("add subtask: empty title: %w", ErrValidation)
	}
	var added model.Subtask
	_, err := p.mutateDetail(ctx, "add subtask", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		added = model.Subtask{
			ID:        p.NewID(),
			Title:     title,
			CreatedAt: p.Now(),
			Order:     d.NextOrder(),
		}
		return subtaskPatch(append(d.Subtasks, added)), nil
	})
	return added, err
}

func (p *PlannerService) ToggleSubtask(ctx context.Context, taskID, subtaskID string) (model.TaskDetail, error) {
	return p.mutateDetail(ctx, "toggle subtask", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := subtaskIndex(d.Subtasks, subtaskID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("subtask %s: %w", subtaskID, ErrNotFound)
		}
		d.Subtasks[i].Done = !d.Subtasks[i].Done
		return subtaskPatch(d.Subtasks), nil
	})
}

func (p *PlannerService) UpdateSubtask(ctx context.Context, taskID, subtaskID string, patch SubtaskPatch) (model.TaskDetail, error) {
	if patch.Title.IsCleared() {
		return model.TaskDetail{}, fmt.Errorf("update subtask: title cleared: %w", ErrValidation)
	}
	return p.mutateDetail(ctx, "update subtask", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := subtaskIndex(d.Subtasks, subtaskID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("subtask %s: %w", subtaskID, ErrNotFound)
		}
		if v, ok := patch.Title.Get(); ok {
			if v = strings.TrimSpace(v); v == "" {
				return model.DetailPatch{}, fmt.Errorf("empty title: %w", ErrValidation)
			}
			d.Subtasks[i].Title = v
		}
		setTime(patch.DueDate, &d.Subtasks[i].DueDate)
		return subtaskPatch(d.Subtasks), nil
	})
}

func (p *PlannerService) DeleteSubtask(ctx context.Context, taskID, subtaskID string) (model.TaskDetail, error) {
	return p.mutateDetail(ctx, "delete subtask", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := subtaskIndex(d.Subtasks, subtaskID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("subtask %s: %w", subtaskID, ErrNotFound)
		}
		rest := append(append([]model.Subtask{}, d.Subtasks[:i]...), d.Subtasks[i+1:]...)
		return subtaskPatch(rest), nil
	})
}

func (p *PlannerService) AddMilestone(ctx context.Context, taskID, title string, target *time.Time) (model.Milestone, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Milestone{}, fmt.Errorf("add milestone: empty title: %w", ErrValidation)
	}
	var added model.Milestone
	_, err := p.mutateDetail(ctx, "add milestone", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		added = model.Milestone{
			ID:         p.NewID(),
			Title:      title,
			TargetDate: target,
			Order:      d.NextOrder(),
		}
		return model.DetailPatch{Milestones: model.Set(append(d.Milestones, added))}, nil
	})
	return added, err
}

func (p *PlannerService) ToggleMilestone(ctx context.Context, taskID, milestoneID string) (model.TaskDetail, error) {
	return p.mutateDetail(ctx, "toggle milestone", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := milestoneIndex(d.Milestones, milestoneID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("milestone %s: %w", milestoneID, ErrNotFound)
		}
		d.Milestones[i].Completed = !d.Milestones[i].Completed
		return model.DetailPatch{Milestones: model.Set(d.Milestones)}, nil
	})
}

func (p *PlannerService) UpdateMilestone(ctx context.Context, taskID, milestoneID string, patch MilestonePatch) (model.TaskDetail, error) {
	if patch.Title.IsCleared() {
		return model.TaskDetail{}, fmt.Errorf("update milestone: title cleared: %w", ErrValidation)
	}
	return p.mutateDetail(ctx, "update milestone", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := milestoneIndex(d.Milestones, milestoneID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("milestone %s: %w", milestoneID, ErrNotFound)
		}
		if v, ok := patch.Title.Get(); ok {
			if v = strings.TrimSpace(v); v == "" {
				return model.DetailPatch{}, fmt.Errorf("empty title: %w", ErrValidation)
			}
			d.Milestones[i].Title = v
		}
		setTime(patch.TargetDate, &d.Milestones[i].TargetDate)
		if v, ok := patch.Completed.Get(); ok {
			d.Milestones[i].Completed = v
		}
		return model.DetailPatch{Milestones: model.Set(d.Milestones)}, nil
	})
}

func (p *PlannerService) DeleteMilestone(ctx context.Context, taskID, milestoneID string) (model.TaskDetail, error) {
	return p.mutateDetail(ctx, "delete milestone", taskID, func(d *model.TaskDetail) (model.DetailPatch, error) {
		i := milestoneIndex(d.Milestones, milestoneID)
		if i < 0 {
			return model.DetailPatch{}, fmt.Errorf("milestone %s: %w", milestoneID, ErrNotFound)
		}
		rest := append(append([]model.Milestone{}, d.Milestones[:i]...), d.Milestones[i+1:]...)
		return model.DetailPatch{Milestones: model.Set(rest)}, nil
	})
}

// UpdateTaskGoal sets the free-text goal of a large task.
func (p *PlannerService) UpdateTaskGoal(ctx context.Context, taskID, goal string) (model.TaskDetail, error) {
	return p.mutateDetail(ctx, "update goal", taskID, func(*model.TaskDetail) (model.DetailPatch, error) {
		return model.DetailPatch{Goal: model.Set(strings.TrimSpace(goal))}, nil
	})
}

// Timeline merges subtasks and milestones of a detail in their shared order.
func Timeline(d model.TaskDetail) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(d.Subtasks)+len(d.Milestones))
	for _, s := range d.Subtasks {
		out = append(out, TimelineEntry{ID: s.ID, Title: s.Title, Done: s.Done, Date: s.DueDate, Order: s.Order})
	}
	for _, m := range d.Milestones {
		out = append(out, TimelineEntry{ID: m.ID, Title: m.Title, Done: m.Completed, Date: m.TargetDate, Order: m.Order, Milestone: true})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// TimelineEntry is one row of a project timeline.
type TimelineEntry struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Done      bool       `json:"done"`
	Date      *time.Time `json:"date,omitempty"`
	Order     int        `json:"order"`
	Milestone bool       `json:"milestone"`
}

func subtaskIndex(subtasks []model.Subtask, id string) int {
	for i, s := range subtasks {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func milestoneIndex(milestones []model.Milestone, id string) int {
	for i, m := range milestones {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func setTime(f model.Field[time.Time], dst **time.Time) {
	switch {
	case f.IsSet():
		v, _ := f.Get()
		*dst = &v
	case f.IsCleared():
		*dst = nil
	}
}
