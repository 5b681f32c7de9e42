package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifemap/internal/model"
	"lifemap/internal/repository"
)

const (
	// BackupHistoryLimit is how many snapshots the history lists and keeps by default.
	BackupHistoryLimit = 30
	// CompletionHistoryLimit is the default page of the completion log.
	CompletionHistoryLimit = 50
)

// RestoredState is the working set reconstructed from a snapshot.
type RestoredState struct {
	Snapshot  model.ArchiveSnapshot
	Tasks     []model.Task
	Details   model.DetailMap
	FocusList []string
}

// ArchiveService keeps snapshot backups and the completion log.
type ArchiveService struct {
	archives  *repository.ArchiveRepository
	completed *repository.CompletedTaskRepository
	logger    *slog.Logger
	retention int
	windowMu  sync.Mutex

	Now func() time.Time
}

func NewArchiveService(archives *repository.ArchiveRepository, completed *repository.CompletedTaskRepository, logger *slog.Logger, retention int) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = BackupHistoryLimit
	}
	return &ArchiveService{
		archives:  archives,
		completed: completed,
		logger:    logger,
		retention: retention,
		Now:       time.Now,
	}
}

// BackupWindow maps a wall-clock hour to the backup taken in it: [6,10) morning, [18,22) evening.
func BackupWindow(hour int) (model.SnapshotType, bool) {
	switch {
	case hour >= 6 && hour < 10:
		return model.SnapshotMorning, true
	case hour >= 18 && hour < 22:
		return model.SnapshotEvening, true
	}
	return "", false
}

// MaybeCreateWindowedBackup writes at most one morning and one evening snapshot per calendar day.
// It returns nil when outside a window or when today's snapshot already exists.
func (s *ArchiveService) MaybeCreateWindowedBackup(ctx context.Context, user string, tasks []model.Task, details model.DetailMap, focus []string) (*model.ArchiveSnapshot, error) {
	now := s.Now()
	typ, ok := BackupWindow(now.Hour())
	if !ok {
		return nil, nil
	}
	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	exists, err := s.archives.ExistsInRange(ctx, user, typ, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.Debug("backup already exists for today", slog.String("user", user), slog.String("type", string(typ)))
		return nil, nil
	}
	return s.write(ctx, user, typ, now, tasks, details, focus)
}

// CreateManualSnapshot always writes a snapshot tagged manual.
func (s *ArchiveService) CreateManualSnapshot(ctx context.Context, user string, tasks []model.Task, details model.DetailMap, focus []string) (*model.ArchiveSnapshot, error) {
	return s.write(ctx, user, model.SnapshotManual, s.Now(), tasks, details, focus)
}

func (s *ArchiveService) write(ctx context.Context, user string, typ model.SnapshotType, at time.Time, tasks []model.Task, details model.DetailMap, focus []string) (*model.ArchiveSnapshot, error) {
	snap := &model.ArchiveSnapshot{
		ID:          uuid.NewString(),
		Owner:       user,
		Timestamp:   at,
		Type:        typ,
		Tasks:       cloneTasks(tasks),
		TaskDetails: details.Clone(),
		FocusList:   append([]string{}, focus...),
	}
	if err := s.archives.Create(ctx, snap); err != nil {
		s.logger.Error("snapshot failed", slog.String("user", user), slog.String("type", string(typ)), slog.String("error", err.Error()))
		return nil, err
	}
	s.logger.Info("snapshot created",
		slog.String("id", snap.ID),
		slog.String("type", string(typ)),
		slog.Int("tasks", len(snap.Tasks)),
		slog.Int("details", len(snap.TaskDetails)),
		slog.Int("focus", len(snap.FocusList)),
	)

	if removed, err := s.archives.Prune(ctx, user, s.retention); err != nil {
		s.logger.Warn("snapshot pruning failed", slog.String("user", user), slog.String("error", err.Error()))
	} else if removed > 0 {
		s.logger.Info("old snapshots pruned", slog.String("user", user), slog.Int64("removed", removed))
	}
	return snap, nil
}

// ListBackups returns the newest snapshots, at most BackupHistoryLimit.
func (s *ArchiveService) ListBackups(ctx context.Context, user string) ([]model.ArchiveSnapshot, error) {
	return s.archives.ListRecent(ctx, user, BackupHistoryLimit)
}

// Restore looks the snapshot up in the listed history and rebuilds the working set.
func (s *ArchiveService) Restore(ctx context.Context, user, snapshotID string) (RestoredState, error) {
	backups, err := s.ListBackups(ctx, user)
	if err != nil {
		return RestoredState{}, err
	}
	for _, b := range backups {
		if b.ID != snapshotID {
			continue
		}
		details := make(model.DetailMap, len(b.TaskDetails))
		for taskID, d := range b.TaskDetails {
			d.TaskID = taskID
			details[taskID] = d
		}
		s.logger.Info("snapshot restored", slog.String("id", b.ID), slog.String("type", string(b.Type)), slog.Int("tasks", len(b.Tasks)))
		return RestoredState{
			Snapshot:  b,
			Tasks:     b.Tasks,
			Details:   details,
			FocusList: nonNilStrings(b.FocusList),
		}, nil
	}
	return RestoredState{}, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
}

// ArchiveCompletion appends one completion record. The task must carry CompletedAt.
func (s *ArchiveService) ArchiveCompletion(ctx context.Context, user string, task model.Task) (*model.CompletedTaskArchive, error) {
	if task.CompletedAt == nil {
		s.logger.Warn("cannot archive task without completion time", slog.String("task", task.ID))
		return nil, fmt.Errorf("archive task %s: not completed: %w", task.ID, ErrValidation)
	}
	rec := &model.CompletedTaskArchive{
		ID:            uuid.NewString(),
		Owner:         user,
		TaskID:        task.ID,
		Title:         task.Title,
		Kind:          task.Kind,
		Priority:      task.Priority,
		Areas:         append([]model.AreaID(nil), task.Areas...),
		CreatedAt:     task.CreatedAt,
		CompletedAt:   *task.CompletedAt,
		WasRepetitive: task.Kind == model.KindRepetitive,
	}
	if task.Recurrence != nil {
		r := task.Recurrence.Clone()
		rec.Recurrence = &r
	}
	if err := s.completed.Create(ctx, rec); err != nil {
		s.logger.Error("archiving completion failed", slog.String("task", task.ID), slog.String("error", err.Error()))
		return nil, err
	}
	s.logger.Info("task archived", slog.String("task", task.ID), slog.String("title", task.Title))
	return rec, nil
}

// History returns the latest completion records; limit <= 0 uses CompletionHistoryLimit.
func (s *ArchiveService) History(ctx context.Context, user string, limit int) ([]model.CompletedTaskArchive, error) {
	if limit <= 0 {
		limit = CompletionHistoryLimit
	}
	return s.completed.ListRecent(ctx, user, limit)
}

// CompletionsOf returns every archived completion of one task, oldest first.
func (s *ArchiveService) CompletionsOf(ctx context.Context, user, taskID string) ([]model.CompletedTaskArchive, error) {
	return s.completed.ListByTask(ctx, user, taskID)
}

// Stats counts completions today, this week (from Sunday), this month and in total.
func (s *ArchiveService) Stats(ctx context.Context, user string) (model.CompletionStats, error) {
	now := s.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	week := today.AddDate(0, 0, -int(today.Weekday()))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var stats model.CompletionStats
	var err error
	if stats.Today, err = s.completed.CountSince(ctx, user, today); err != nil {
		return model.CompletionStats{}, err
	}
	if stats.ThisWeek, err = s.completed.CountSince(ctx, user, week); err != nil {
		return model.CompletionStats{}, err
	}
	if stats.ThisMonth, err = s.completed.CountSince(ctx, user, month); err != nil {
		return model.CompletionStats{}, err
	}
	if stats.Total, err = s.completed.CountSince(ctx, user, time.Time{}); err != nil {
		return model.CompletionStats{}, err
	}
	return stats, nil
}

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
