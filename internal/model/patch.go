package model

import (
	"bytes"
	"encoding/json"
	"time"
)

type fieldState uint8

const (
	fieldUnchanged fieldState = iota
	fieldSet
	fieldCleared
)

// Field is one attribute of a partial update: left unchanged, set to a value, or cleared.
// The zero value is unchanged.
type Field[T any] struct {
	state fieldState
	value T
}

func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldSet, value: v}
}

func Clear[T any]() Field[T] {
	return Field[T]{state: fieldCleared}
}

func (f Field[T]) IsSet() bool       { return f.state == fieldSet }
func (f Field[T]) IsCleared() bool   { return f.state == fieldCleared }
func (f Field[T]) IsUnchanged() bool { return f.state == fieldUnchanged }

// Get returns the value and whether the field was set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == fieldSet
}

// UnmarshalJSON maps null to cleared. An absent key never reaches this method and stays unchanged.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Clear[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}

func applyPtr[T any](f Field[T], dst **T) {
	switch f.state {
	case fieldSet:
		v := f.value
		*dst = &v
	case fieldCleared:
		*dst = nil
	}
}

// TaskPatch is a partial task update.
type TaskPatch struct {
	Title           Field[string]     `json:"title"`
	Kind            Field[TaskKind]   `json:"type"`
	Priority        Field[Priority]   `json:"priority"`
	Areas           Field[[]AreaID]   `json:"areas"`
	DueDate         Field[time.Time]  `json:"dueDate"`
	Position        Field[Point]      `json:"position"`
	CompletedAt     Field[time.Time]  `json:"completedAt"`
	LastCompletedAt Field[time.Time]  `json:"lastCompletedAt"`
	Recurrence      Field[Recurrence] `json:"recurrence"`
	Collaborators   Field[[]string]   `json:"collaborators"`

	// IsHybrid is derived from Areas by the planner, never taken from callers.
	IsHybrid Field[bool] `json:"-"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title.IsUnchanged() && p.Kind.IsUnchanged() && p.Priority.IsUnchanged() &&
		p.Areas.IsUnchanged() && p.DueDate.IsUnchanged() && p.Position.IsUnchanged() &&
		p.CompletedAt.IsUnchanged() && p.LastCompletedAt.IsUnchanged() &&
		p.Recurrence.IsUnchanged() && p.Collaborators.IsUnchanged() && p.IsHybrid.IsUnchanged()
}

// Apply returns a copy of t with the patch applied. Clearing a required field leaves it as is.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if v, ok := p.Title.Get(); ok {
		out.Title = v
	}
	if v, ok := p.Kind.Get(); ok {
		out.Kind = v
	}
	if v, ok := p.Priority.Get(); ok {
		out.Priority = v
	}
	if v, ok := p.Areas.Get(); ok {
		out.Areas = append([]AreaID(nil), v...)
	}
	if v, ok := p.IsHybrid.Get(); ok {
		out.IsHybrid = v
	}
	applyPtr(p.DueDate, &out.DueDate)
	applyPtr(p.Position, &out.Position)
	applyPtr(p.CompletedAt, &out.CompletedAt)
	applyPtr(p.LastCompletedAt, &out.LastCompletedAt)
	applyPtr(p.Recurrence, &out.Recurrence)
	switch {
	case p.Collaborators.IsSet():
		out.Collaborators = append([]string(nil), p.Collaborators.value...)
	case p.Collaborators.IsCleared():
		out.Collaborators = nil
	}
	return out
}

// DetailPatch replaces whole fields of a task detail. Lists are always written in full.
type DetailPatch struct {
	Goal       Field[string]
	Progress   Field[int]
	Subtasks   Field[[]Subtask]
	Milestones Field[[]Milestone]
}

func (p DetailPatch) Empty() bool {
	return p.Goal.IsUnchanged() && p.Progress.IsUnchanged() && p.Subtasks.IsUnchanged() && p.Milestones.IsUnchanged()
}

func (p DetailPatch) Apply(d TaskDetail) TaskDetail {
	out := d.Clone()
	if v, ok := p.Goal.Get(); ok {
		out.Goal = v
	}
	if v, ok := p.Progress.Get(); ok {
		out.Progress = v
	}
	if v, ok := p.Subtasks.Get(); ok {
		out.Subtasks = append([]Subtask{}, v...)
	}
	if v, ok := p.Milestones.Get(); ok {
		out.Milestones = append([]Milestone{}, v...)
	}
	return out
}
