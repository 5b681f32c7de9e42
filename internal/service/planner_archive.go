package service

import (
	"context"
	"fmt"
	"log/slog"

	"lifemap/internal/model"
)

// CreateWindowedBackup takes the morning or evening snapshot if it is due.
func (p *PlannerService) CreateWindowedBackup(ctx context.Context) (*model.ArchiveSnapshot, error) {
	p.mu.RLock()
	sess := p.sess
	p.mu.RUnlock()
	if sess == nil {
		return nil, ErrNotInitialized
	}
	return p.maybeBackup(ctx, sess)
}

// CreateBackup takes a manual snapshot of the working set.
func (p *PlannerService) CreateBackup(ctx context.Context) (*model.ArchiveSnapshot, error) {
	p.mu.RLock()
	user, err := p.userLocked()
	if err != nil {
		p.mu.RUnlock()
		return nil, err
	}
	tasks, details, focus := cloneTasks(p.tasks), p.details.Clone(), append([]string{}, p.focus...)
	p.mu.RUnlock()
	return p.archive.CreateManualSnapshot(ctx, user, tasks, details, focus)
}

func (p *PlannerService) ListBackups(ctx context.Context) ([]model.ArchiveSnapshot, error) {
	user, err := p.User()
	if err != nil {
		return nil, err
	}
	return p.archive.ListBackups(ctx, user)
}

// RestoreBackup overwrites the working set with a snapshot. It is destructive and
// requires confirm to be true.
func (p *PlannerService) RestoreBackup(ctx context.Context, snapshotID string, confirm bool) (RestoredState, error) {
	if !confirm {
		return RestoredState{}, fmt.Errorf("restore %s: %w", snapshotID, ErrConfirmationRequired)
	}
	user, err := p.User()
	if err != nil {
		return RestoredState{}, err
	}
	state, err := p.archive.Restore(ctx, user, snapshotID)
	if err != nil {
		return RestoredState{}, fmt.Errorf("restore %s: %w", snapshotID, err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.write(ctx, "restore snapshot", func(ctx context.Context) error {
		return p.gateway.ReplaceAll(ctx, user, state.Tasks, state.Details, state.FocusList)
	}); err != nil {
		return RestoredState{}, err
	}

	p.mu.Lock()
	for id, pd := range p.pending {
		pd.stop()
		delete(p.pending, id)
	}
	p.tasks = cloneTasks(state.Tasks)
	p.details = state.Details.Clone()
	p.focus = append([]string{}, state.FocusList...)
	p.blocks = nil
	p.mu.Unlock()
	p.notify()

	p.logger.Info("working set restored", slog.String("snapshot", snapshotID), slog.Int("tasks", len(state.Tasks)))
	return state, nil
}

// History returns the latest completion records of the signed-in user.
func (p *PlannerService) History(ctx context.Context, limit int) ([]model.CompletedTaskArchive, error) {
	user, err := p.User()
	if err != nil {
		return nil, err
	}
	return p.archive.History(ctx, user, limit)
}

func (p *PlannerService) Stats(ctx context.Context) (model.CompletionStats, error) {
	user, err := p.User()
	if err != nil {
		return model.CompletionStats{}, err
	}
	return p.archive.Stats(ctx, user)
}

// Completions returns every archived completion of one task.
func (p *PlannerService) Completions(ctx context.Context, taskID string) ([]model.CompletedTaskArchive, error) {
	user, err := p.User()
	if err != nil {
		return nil, err
	}
	return p.archive.CompletionsOf(ctx, user, taskID)
}
