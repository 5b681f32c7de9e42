package model

import (
	"fmt"
	"time"
)

// TaskKind decides how completion behaves and which pin the map draws.
type TaskKind string

const (
	KindRepetitive TaskKind = "repetitive"
	KindOneTime    TaskKind = "one-time"
	KindLarge      TaskKind = "large"
)

// Valid reports whether k is one of the known kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case KindRepetitive, KindOneTime, KindLarge:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Point is a coordinate on the spatial map.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Task represents a single item placed on the life map.
type Task struct {
	ID              string      `gorm:"primaryKey" json:"id"`
	Owner           string      `gorm:"index" json:"owner"`
	Title           string      `json:"title"`
	Kind            TaskKind    `gorm:"column:kind" json:"type"`
	Priority        Priority    `json:"priority"`
	Areas           []AreaID    `gorm:"serializer:json" json:"areas"`
	IsHybrid        bool        `json:"isHybrid"`
	DueDate         *time.Time  `json:"dueDate,omitempty"`
	Position        *Point      `gorm:"serializer:json" json:"position,omitempty"`
	CreatedAt       time.Time   `gorm:"index" json:"createdAt"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	LastCompletedAt *time.Time  `json:"lastCompletedAt,omitempty"`
	Recurrence      *Recurrence `gorm:"serializer:json" json:"recurrence,omitempty"`
	Collaborators   []string    `gorm:"serializer:json" json:"collaborators,omitempty"`
}

// IsComplete reports whether the task currently shows as done.
func (t Task) IsComplete() bool {
	return t.CompletedAt != nil
}

// SharedWith reports whether user owns the task or collaborates on it.
func (t Task) SharedWith(user string) bool {
	if t.Owner == user {
		return true
	}
	for _, c := range t.Collaborators {
		if c == user {
			return true
		}
	}
	return false
}

// Validate checks the fields every stored task must carry.
func (t Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown task type %q", t.Kind)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if len(t.Areas) == 0 {
		return fmt.Errorf("at least one area is required")
	}
	if len(t.Areas) > MaxTaskAreas {
		return fmt.Errorf("a task belongs to at most %d areas", MaxTaskAreas)
	}
	for _, a := range t.Areas {
		if !a.Valid() {
			return fmt.Errorf("unknown area %q", a)
		}
	}
	if t.Recurrence != nil {
		if err := t.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share slices with the store.
func (t Task) Clone() Task {
	c := t
	c.Areas = append([]AreaID(nil), t.Areas...)
	c.Collaborators = append([]string(nil), t.Collaborators...)
	if len(t.Collaborators) == 0 {
		c.Collaborators = nil
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.Position != nil {
		v := *t.Position
		c.Position = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.LastCompletedAt != nil {
		v := *t.LastCompletedAt
		c.LastCompletedAt = &v
	}
	if t.Recurrence != nil {
		r := t.Recurrence.Clone()
		c.Recurrence = &r
	}
	return c
}

// TimeBlock reserves a calendar slot for a task. Blocks live in memory only.
type TimeBlock struct {
	ID     string    `json:"id"`
	TaskID string    `json:"taskId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Source string    `json:"source"`
}
