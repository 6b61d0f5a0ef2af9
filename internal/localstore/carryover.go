package localstore

import (
	"context"
	"fmt"

	"daycard/internal/model"
)

// CarryOverCandidates are yesterday's tasks that are neither completed nor
// dismissed.
func (s *Store) CarryOverCandidates(ctx context.Context, yesterday string) ([]model.Task, error) {
	tasks, err := s.ListTasksByDate(ctx, yesterday)
	if err != nil {
		return nil, err
	}
	var open []model.Task
	for _, t := range tasks {
		if !t.Done() && t.DismissedOnDate == nil {
			open = append(open, t)
		}
	}
	return open, nil
}

// MoveTask moves a task to target. originDate keeps the first day the task
// was planned for.
func (s *Store) MoveTask(ctx context.Context, id, target string) (model.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if t == nil {
		return model.Task{}, fmt.Errorf("todo %s not found", id)
	}
	if t.OriginDate == nil {
		origin := t.Date
		t.OriginDate = &origin
	}
	t.Date = target
	t.DismissedOnDate = nil
	return s.PutTask(ctx, *t)
}

// DismissCarry hides a carry-over candidate for today without moving it.
func (s *Store) DismissCarry(ctx context.Context, id, today string) (model.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if t == nil {
		return model.Task{}, fmt.Errorf("todo %s not found", id)
	}
	t.DismissedOnDate = &today
	return s.PutTask(ctx, *t)
}
