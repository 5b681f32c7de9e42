package service

import (
	"fmt"
	"sort"
	"time"

	"lifemap/internal/model"
)

// AddTimeBlock reserves a calendar slot for a task. Blocks live only in this session.
func (p *PlannerService) AddTimeBlock(taskID string, start, end time.Time, source string) (model.TimeBlock, error) {
	if !end.After(start) {
		return model.TimeBlock{}, fmt.Errorf("add time block: end before start: %w", ErrValidation)
	}
	p.mu.Lock()
	if _, err := p.userLocked(); err != nil {
		p.mu.Unlock()
		return model.TimeBlock{}, err
	}
	if _, ok := p.taskLocked(taskID); !ok {
		p.mu.Unlock()
		return model.TimeBlock{}, fmt.Errorf("add time block: task %s: %w", taskID, ErrNotFound)
	}
	if source == "" {
		source = "manual"
	}
	b := model.TimeBlock{ID: p.NewID(), TaskID: taskID, Start: start, End: end, Source: source}
	p.blocks = append(p.blocks, b)
	p.mu.Unlock()
	p.notify()
	return b, nil
}

// UpdateTimeBlock moves or resizes a block.
func (p *PlannerService) UpdateTimeBlock(id string, start, end time.Time) (model.TimeBlock, error) {
	if !end.After(start) {
		return model.TimeBlock{}, fmt.Errorf("update time block: end before start: %w", ErrValidation)
	}
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.notify()
	}()
	for i := range p.blocks {
		if p.blocks[i].ID == id {
			p.blocks[i].Start, p.blocks[i].End = start, end
			return p.blocks[i], nil
		}
	}
	return model.TimeBlock{}, fmt.Errorf("update time block %s: %w", id, ErrNotFound)
}

func (p *PlannerService) DeleteTimeBlock(id string) error {
	p.mu.Lock()
	n := len(p.blocks)
	p.blocks = filterBlocks(p.blocks, func(b model.TimeBlock) bool { return b.ID != id })
	removed := len(p.blocks) != n
	p.mu.Unlock()
	if !removed {
		return fmt.Errorf("delete time block %s: %w", id, ErrNotFound)
	}
	p.notify()
	return nil
}

// TimeBlocks returns the blocks that overlap [from, to), ordered by start. Zero bounds are open.
func (p *PlannerService) TimeBlocks(from, to time.Time) []model.TimeBlock {
	p.mu.RLock()
	out := filterBlocks(p.blocks, func(b model.TimeBlock) bool {
		return (from.IsZero() || b.End.After(from)) && (to.IsZero() || b.Start.Before(to))
	})
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func filterBlocks(blocks []model.TimeBlock, keep func(model.TimeBlock) bool) []model.TimeBlock {
	out := make([]model.TimeBlock, 0, len(blocks))
	for _, b := range blocks {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}
