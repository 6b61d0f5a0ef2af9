package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"daycard/internal/model"
)

// mutate runs fn and journals (collection, id, op) in the same transaction.
func (s *Store) mutate(ctx context.Context, collection, id string, op Op, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.recordChange(ctx, tx, collection, id, op); err != nil {
		return fmt.Errorf("journal %s/%s: %w", collection, id, err)
	}
	return tx.Commit()
}

func (s *Store) deleteRow(ctx context.Context, collection, id string) error {
	return s.mutate(ctx, collection, id, OpDelete, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM "+collection+" WHERE id = ?", id)
		return err
	})
}

// PutTask creates or replaces a task. A missing id is generated and both
// timestamps are stamped the way a fresh write expects.
func (s *Store) PutTask(ctx context.Context, t model.Task) (model.Task, error) {
	now := s.timestamp()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	err := s.mutate(ctx, CollectionTodos, t.ID, OpUpsert, func(tx *sql.Tx) error {
		return insertTask(ctx, tx, t)
	})
	return t, err
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return queryOne[model.Task](ctx, s.db, "SELECT data FROM todos WHERE id = ?", id)
}

// ListTasksByDate uses the date index.
func (s *Store) ListTasksByDate(ctx context.Context, date string) ([]model.Task, error) {
	return queryAll[model.Task](ctx, s.db, "SELECT data FROM todos WHERE date = ? ORDER BY id", date)
}

// ListTasksInRange returns tasks with from <= date <= to.
func (s *Store) ListTasksInRange(ctx context.Context, from, to string) ([]model.Task, error) {
	return queryAll[model.Task](ctx, s.db, "SELECT data FROM todos WHERE date >= ? AND date <= ? ORDER BY date, id", from, to)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.deleteRow(ctx, CollectionTodos, id)
}

func (s *Store) PutHabit(ctx context.Context, h model.Habit) (model.Habit, error) {
	now := s.timestamp()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt == "" {
		h.CreatedAt = now
	}
	if h.TargetPerDay == 0 {
		h.TargetPerDay = 1
	}
	h.UpdatedAt = now
	if err := h.Validate(); err != nil {
		return model.Habit{}, err
	}

	err := s.mutate(ctx, CollectionHabits, h.ID, OpUpsert, func(tx *sql.Tx) error {
		return insertHabit(ctx, tx, h)
	})
	return h, err
}

func (s *Store) ListHabits(ctx context.Context) ([]model.Habit, error) {
	return queryAll[model.Habit](ctx, s.db, "SELECT data FROM habits ORDER BY id")
}

func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	return s.deleteRow(ctx, CollectionHabits, id)
}

// GetHabitLog looks a log up by its (habitID, date) pair.
func (s *Store) GetHabitLog(ctx context.Context, habitID, date string) (*model.HabitLog, error) {
	return queryOne[model.HabitLog](ctx, s.db,
		"SELECT data FROM habit_logs WHERE habit_id = ? AND date = ?", habitID, date)
}

func (s *Store) ListHabitLogsByDate(ctx context.Context, date string) ([]model.HabitLog, error) {
	return queryAll[model.HabitLog](ctx, s.db, "SELECT data FROM habit_logs WHERE date = ? ORDER BY habit_id", date)
}

// UpsertHabitLog sets the count for (habitID, date). An existing log keeps
// its id so the remote upsert, keyed by id, updates the same row.
func (s *Store) UpsertHabitLog(ctx context.Context, habitID, date string, count int) (model.HabitLog, error) {
	existing, err := s.GetHabitLog(ctx, habitID, date)
	if err != nil {
		return model.HabitLog{}, err
	}

	log := model.HabitLog{ID: uuid.NewString(), HabitID: habitID, Date: date}
	if existing != nil {
		log = *existing
	}
	log.Count = count
	log.UpdatedAt = s.timestamp()
	if err := log.Validate(); err != nil {
		return model.HabitLog{}, err
	}

	err = s.mutate(ctx, CollectionHabitLogs, log.ID, OpUpsert, func(tx *sql.Tx) error {
		return insertHabitLog(ctx, tx, log)
	})
	return log, err
}

func (s *Store) DeleteHabitLog(ctx context.Context, id string) error {
	return s.deleteRow(ctx, CollectionHabitLogs, id)
}

func (s *Store) PutCalendarSource(ctx context.Context, c model.CalendarSource) (model.CalendarSource, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.UpdatedAt = s.timestamp()
	if err := c.Validate(); err != nil {
		return model.CalendarSource{}, err
	}

	err := s.mutate(ctx, CollectionCalendarSources, c.ID, OpUpsert, func(tx *sql.Tx) error {
		return insertCalendarSource(ctx, tx, c)
	})
	return c, err
}

func (s *Store) ListCalendarSources(ctx context.Context) ([]model.CalendarSource, error) {
	return queryAll[model.CalendarSource](ctx, s.db, "SELECT data FROM calendar_sources ORDER BY id")
}

// EnabledCalendarSources is the ingestion input.
func (s *Store) EnabledCalendarSources(ctx context.Context) ([]model.CalendarSource, error) {
	all, err := s.ListCalendarSources(ctx)
	if err != nil {
		return nil, err
	}
	var enabled []model.CalendarSource
	for _, c := range all {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	return enabled, nil
}

func (s *Store) DeleteCalendarSource(ctx context.Context, id string) error {
	return s.deleteRow(ctx, CollectionCalendarSources, id)
}

// GetSettings falls back to the defaults until settings are first saved.
func (s *Store) GetSettings(ctx context.Context) (model.Settings, error) {
	st, err := queryOne[model.Settings](ctx, s.db, "SELECT data FROM settings WHERE key = ?", settingsKey)
	if err != nil {
		return model.Settings{}, err
	}
	if st == nil {
		return model.DefaultSettings(), nil
	}
	return *st, nil
}

func (s *Store) PutSettings(ctx context.Context, st model.Settings) error {
	if st.CalendarRefreshMinutes <= 0 {
		st.CalendarRefreshMinutes = model.DefaultCalendarRefreshMinutes
	}
	return s.mutate(ctx, CollectionSettings, settingsKey, OpUpsert, func(tx *sql.Tx) error {
		return insertSettings(ctx, tx, st)
	})
}
