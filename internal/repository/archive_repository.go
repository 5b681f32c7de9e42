package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lifemap/internal/model"
)

// ArchiveRepository stores snapshot backups.
type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Create(ctx context.Context, snap *model.ArchiveSnapshot) error {
	snap.Timestamp = snap.Timestamp.UTC()
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// ExistsInRange reports whether a snapshot of the given type was taken in [from, to).
func (r *ArchiveRepository) ExistsInRange(ctx context.Context, owner string, typ model.SnapshotType, from, to time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ArchiveSnapshot{}).
		Where("owner = ? AND type = ? AND timestamp >= ? AND timestamp < ?", owner, typ, from.UTC(), to.UTC()).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("find snapshot: %w", err)
	}
	return count > 0, nil
}

// ListRecent returns up to limit snapshots, newest first.
func (r *ArchiveRepository) ListRecent(ctx context.Context, owner string, limit int) ([]model.ArchiveSnapshot, error) {
	var snaps []model.ArchiveSnapshot
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("timestamp DESC").
		Limit(limit).
		Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Prune deletes everything but the newest keep snapshots of owner.
func (r *ArchiveRepository) Prune(ctx context.Context, owner string, keep int) (int64, error) {
	db := r.db.WithContext(ctx)
	newest := db.Model(&model.ArchiveSnapshot{}).
		Select("id").
		Where("owner = ?", owner).
		Order("timestamp DESC").
		Limit(keep)
	res := db.Where("owner = ? AND id NOT IN (?)", owner, newest).Delete(&model.ArchiveSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CompletedTaskRepository stores the append-only completion log.
type CompletedTaskRepository struct {
	db *gorm.DB
}

func NewCompletedTaskRepository(db *gorm.DB) *CompletedTaskRepository {
	return &CompletedTaskRepository{db: db}
}

func (r *CompletedTaskRepository) Create(ctx context.Context, rec *model.CompletedTaskArchive) error {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.CompletedAt = rec.CompletedAt.UTC()
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("archive completion: %w", err)
	}
	return nil
}

// ListRecent returns the latest completion records, newest first.
func (r *CompletedTaskRepository) ListRecent(ctx context.Context, owner string, limit int) ([]model.CompletedTaskArchive, error) {
	var recs []model.CompletedTaskArchive
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("completed_at DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list completed tasks: %w", err)
	}
	return recs, nil
}

// ListByTask returns every completion record of one task.
func (r *CompletedTaskRepository) ListByTask(ctx context.Context, owner, taskID string) ([]model.CompletedTaskArchive, error) {
	var recs []model.CompletedTaskArchive
	if err := r.db.WithContext(ctx).
		Where("owner = ? AND task_id = ?", owner, taskID).
		Order("completed_at ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list completions of %s: %w", taskID, err)
	}
	return recs, nil
}

// CountSince counts completions at or after since; a zero since counts everything.
func (r *CompletedTaskRepository) CountSince(ctx context.Context, owner string, since time.Time) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&model.CompletedTaskArchive{}).Where("owner = ?", owner)
	if !since.IsZero() {
		q = q.Where("completed_at >= ?", since.UTC())
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completed tasks: %w", err)
	}
	return count, nil
}
