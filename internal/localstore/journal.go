package localstore

import (
	"context"
	"fmt"

	"daycard/internal/model"
)

// Op is what happened to a row since the last push.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change is one journal entry. QueuedAt lets Acknowledge keep entries that
// were rewritten after the changeset was built.
type Change struct {
	Collection string
	ID         string
	Op         Op
	QueuedAt   int64
}

func (s *Store) recordChange(ctx context.Context, ex execer, collection, id string, op Op) error {
	_, err := ex.ExecContext(ctx, `
        INSERT INTO pending_changes (collection, id, op, queued_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(collection, id) DO UPDATE SET op = excluded.op, queued_at = excluded.queued_at
    `, collection, id, string(op), s.now().UnixNano())
	return err
}

// PendingChanges lists the journal in queue order.
func (s *Store) PendingChanges(ctx context.Context) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT collection, id, op, queued_at FROM pending_changes ORDER BY queued_at, collection, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var c Change
		var op string
		if err := rows.Scan(&c.Collection, &c.ID, &op, &c.QueuedAt); err != nil {
			return nil, err
		}
		c.Op = Op(op)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// BuildChangeset turns the journal into a push body. An upserted row that no
// longer exists locally is skipped; its delete entry will follow.
func (s *Store) BuildChangeset(ctx context.Context) (model.Changeset, []Change, error) {
	changes, err := s.PendingChanges(ctx)
	if err != nil {
		return model.Changeset{}, nil, err
	}

	var cs model.Changeset
	for _, c := range changes {
		if c.Op == OpDelete {
			switch c.Collection {
			case CollectionTodos:
				cs.DeletedTodos = append(cs.DeletedTodos, c.ID)
			case CollectionHabits:
				cs.DeletedHabits = append(cs.DeletedHabits, c.ID)
			case CollectionHabitLogs:
				cs.DeletedHabitLogs = append(cs.DeletedHabitLogs, c.ID)
			case CollectionCalendarSources:
				cs.DeletedCalendarSources = append(cs.DeletedCalendarSources, c.ID)
			}
			continue
		}

		switch c.Collection {
		case CollectionTodos:
			t, err := s.GetTask(ctx, c.ID)
			if err != nil {
				return model.Changeset{}, nil, fmt.Errorf("load todo %s: %w", c.ID, err)
			}
			if t != nil {
				cs.Todos = append(cs.Todos, *t)
			}
		case CollectionHabits:
			h, err := queryOne[model.Habit](ctx, s.db, "SELECT data FROM habits WHERE id = ?", c.ID)
			if err != nil {
				return model.Changeset{}, nil, fmt.Errorf("load habit %s: %w", c.ID, err)
			}
			if h != nil {
				cs.Habits = append(cs.Habits, *h)
			}
		case CollectionHabitLogs:
			l, err := queryOne[model.HabitLog](ctx, s.db, "SELECT data FROM habit_logs WHERE id = ?", c.ID)
			if err != nil {
				return model.Changeset{}, nil, fmt.Errorf("load habit log %s: %w", c.ID, err)
			}
			if l != nil {
				cs.HabitLogs = append(cs.HabitLogs, *l)
			}
		case CollectionCalendarSources:
			src, err := queryOne[model.CalendarSource](ctx, s.db, "SELECT data FROM calendar_sources WHERE id = ?", c.ID)
			if err != nil {
				return model.Changeset{}, nil, fmt.Errorf("load calendar source %s: %w", c.ID, err)
			}
			if src != nil {
				cs.CalendarSources = append(cs.CalendarSources, *src)
			}
		case CollectionSettings:
			st, err := s.GetSettings(ctx)
			if err != nil {
				return model.Changeset{}, nil, fmt.Errorf("load settings: %w", err)
			}
			cs.Settings = &st
		}
	}
	return cs, changes, nil
}

// Acknowledge drops the given entries unless they were queued again later.
func (s *Store) Acknowledge(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM pending_changes WHERE collection = ? AND id = ? AND queued_at <= ?",
			c.Collection, c.ID, c.QueuedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PendingCount is the journal length.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_changes").Scan(&n)
	return n, err
}
