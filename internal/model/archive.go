package model

import "time"

type SnapshotType string

const (
	SnapshotMorning SnapshotType = "morning"
	SnapshotEvening SnapshotType = "evening"
	SnapshotManual  SnapshotType = "manual"
)

// ArchiveSnapshot is a full point-in-time copy of a user's working set.
type ArchiveSnapshot struct {
	ID          string       `gorm:"primaryKey" json:"id"`
	Owner       string       `gorm:"index:idx_archive_owner_time" json:"owner"`
	Timestamp   time.Time    `gorm:"index:idx_archive_owner_time" json:"timestamp"`
	Type        SnapshotType `gorm:"index" json:"type"`
	Tasks       []Task       `gorm:"serializer:json" json:"tasks"`
	TaskDetails DetailMap    `gorm:"serializer:json" json:"taskDetails"`
	FocusList   []string     `gorm:"serializer:json" json:"focusList"`
}

func (ArchiveSnapshot) TableName() string {
	return "archives"
}

// CompletedTaskArchive records a single completion event.
type CompletedTaskArchive struct {
	ID            string      `gorm:"primaryKey" json:"id"`
	Owner         string      `gorm:"index:idx_completed_owner_time" json:"owner"`
	TaskID        string      `gorm:"index" json:"taskId"`
	Title         string      `json:"title"`
	Kind          TaskKind    `gorm:"column:kind" json:"type"`
	Priority      Priority    `json:"priority"`
	Areas         []AreaID    `gorm:"serializer:json" json:"areas"`
	CreatedAt     time.Time   `gorm:"autoCreateTime:false" json:"createdAt"`
	CompletedAt   time.Time   `gorm:"index:idx_completed_owner_time" json:"completedAt"`
	WasRepetitive bool        `json:"wasRepetitive"`
	Recurrence    *Recurrence `gorm:"serializer:json" json:"recurrence,omitempty"`
}

func (CompletedTaskArchive) TableName() string {
	return "completed_tasks"
}

// CompletionStats counts completion events by calendar window.
type CompletionStats struct {
	Today     int64 `json:"today"`
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
	Total     int64 `json:"total"`
}
