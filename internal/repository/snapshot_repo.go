package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/internal/model"
	"daycard/pkg/metrics"
	"daycard/pkg/util"
)

// DefaultWatermark sorts before every ISO timestamp, so a pull without a
// watermark returns everything.
const DefaultWatermark = "0000"

// SnapshotStore is the remote side of replication.
type SnapshotStore interface {
	Pull(ctx context.Context, userID, since string) (*model.Snapshot, error)
	Push(ctx context.Context, userID string, cs model.Changeset) error
	Ping(ctx context.Context) error
}

// pgxHandle is the subset of *pgxpool.Pool the repository uses.
type pgxHandle interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type SnapshotRepository struct {
	db     pgxHandle
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	caps schemaCaps
}

var errUnbound = apperr.New(apperr.KindConfig, "Missing database binding")

// NewSnapshotRepository wraps the process-wide pool. A nil pool yields a
// repository whose every call fails with a config error.
func NewSnapshotRepository(db *pgxpool.Pool, logger *zap.Logger) *SnapshotRepository {
	r := &SnapshotRepository{logger: logger, now: time.Now}
	if db != nil {
		r.db = db
	}
	return r
}

func (r *SnapshotRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errUnbound
	}
	return r.db.Ping(ctx)
}

// Pull reads every collection for userID changed after since. A query that
// still trips over a missing column invalidates the cached schema and is
// retried once after re-migrating.
func (r *SnapshotRepository) Pull(ctx context.Context, userID, since string) (*model.Snapshot, error) {
	if r.db == nil {
		return nil, errUnbound
	}
	if since == "" {
		since = DefaultWatermark
	}

	snap, err := r.pullOnce(ctx, userID, since)
	if err != nil && util.IsSchemaDrift(err) {
		r.logger.Warn("Schema drift on pull, re-probing", zap.String("user_id", userID), zap.Error(err))
		r.invalidate()
		snap, err = r.pullOnce(ctx, userID, since)
	}
	if err != nil {
		metrics.IncrementSyncOperation("pull", "error")
		return nil, err
	}
	metrics.IncrementSyncOperation("pull", "ok")
	return snap, nil
}

func (r *SnapshotRepository) pullOnce(ctx context.Context, userID, since string) (*model.Snapshot, error) {
	caps, err := r.capabilities(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC().Format(time.RFC3339Nano)

	snap := &model.Snapshot{}
	if snap.Todos, err = r.pullTodos(ctx, caps, userID, since, now); err != nil {
		return nil, fmt.Errorf("pull todos: %w", err)
	}
	if snap.Habits, err = r.pullHabits(ctx, caps, userID, since, now); err != nil {
		return nil, fmt.Errorf("pull habits: %w", err)
	}
	if snap.HabitLogs, err = r.pullHabitLogs(ctx, caps, userID, since, now); err != nil {
		return nil, fmt.Errorf("pull habit logs: %w", err)
	}
	if snap.CalendarSources, err = r.pullCalendarSources(ctx, caps, userID, since); err != nil {
		return nil, fmt.Errorf("pull calendar sources: %w", err)
	}
	if snap.Settings, err = r.pullSettings(ctx, caps, userID); err != nil {
		return nil, fmt.Errorf("pull settings: %w", err)
	}
	snap.Normalize()
	return snap, nil
}

func (r *SnapshotRepository) pullTodos(ctx context.Context, caps schemaCaps, userID, since, now string) ([]model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "todos", time.Since(start)) }()

	query, args := selectSince(caps, "todos", todoColumns, userID, since)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var todos []model.Task
	for rows.Next() {
		var (
			t                                 model.Task
			date, title, createdAt, updatedAt *string
		)
		if err := rows.Scan(
			&t.ID,
			&date,
			&title,
			&t.Notes,
			&t.LinkURL,
			&t.Icon,
			&t.Order,
			&t.CompletedAt,
			&t.OriginDate,
			&t.DismissedOnDate,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		t.Date = deref(date)
		t.Title = deref(title)
		t.CreatedAt, t.UpdatedAt = backfillTimestamps(createdAt, updatedAt, now)
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

func (r *SnapshotRepository) pullHabits(ctx context.Context, caps schemaCaps, userID, since, now string) ([]model.Habit, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "habits", time.Since(start)) }()

	query, args := selectSince(caps, "habits", habitColumns, userID, since)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		var (
			h                                         model.Habit
			title, scheduleJSON, createdAt, updatedAt *string
			target                                    *int
		)
		if err := rows.Scan(
			&h.ID,
			&title,
			&h.Notes,
			&h.Icon,
			&scheduleJSON,
			&target,
			&h.Enabled,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		h.Title = deref(title)
		h.TargetPerDay = 1
		if target != nil && *target > 0 {
			h.TargetPerDay = *target
		}
		schedule, err := decodeSchedule(scheduleJSON)
		if err != nil {
			r.logger.Warn("Unreadable habit schedule, using daily",
				zap.String("habit_id", h.ID),
				zap.Error(err),
			)
		}
		h.Schedule = schedule
		h.CreatedAt, h.UpdatedAt = backfillTimestamps(createdAt, updatedAt, now)
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (r *SnapshotRepository) pullHabitLogs(ctx context.Context, caps schemaCaps, userID, since, now string) ([]model.HabitLog, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "habit_logs", time.Since(start)) }()

	query, args := selectSince(caps, "habit_logs", habitLogColumns, userID, since)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.HabitLog
	for rows.Next() {
		var (
			l         model.HabitLog
			count     *int
			updatedAt *string
		)
		if err := rows.Scan(&l.ID, &l.HabitID, &l.Date, &count, &updatedAt); err != nil {
			return nil, err
		}
		if count != nil {
			l.Count = *count
		}
		_, l.UpdatedAt = backfillTimestamps(nil, updatedAt, now)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *SnapshotRepository) pullCalendarSources(ctx context.Context, caps schemaCaps, userID, since string) ([]model.CalendarSource, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "calendar_sources", time.Since(start)) }()

	query, args := selectSince(caps, "calendar_sources", calendarSourceColumns, userID, since)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []model.CalendarSource
	for rows.Next() {
		var (
			s               model.CalendarSource
			name, updatedAt *string
			enabled         *bool
		)
		if err := rows.Scan(&s.ID, &name, &s.ICSURL, &enabled, &s.Icon, &updatedAt); err != nil {
			return nil, err
		}
		s.Name = deref(name)
		s.Enabled = enabled == nil || *enabled
		s.UpdatedAt = deref(updatedAt)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// pullSettings ignores the watermark: the singleton is always returned.
func (r *SnapshotRepository) pullSettings(ctx context.Context, caps schemaCaps, userID string) (*model.Settings, error) {
	query := fmt.Sprintf("SELECT %s FROM settings WHERE user_id = $1",
		projection(caps, "settings", settingsColumns))

	var (
		theme          *string
		showCompleted  *bool
		refreshMinutes *int
		s              model.Settings
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&theme,
		&showCompleted,
		&refreshMinutes,
		&s.SuggestDates,
		&s.SuggestHabits,
		&s.SuggestTimeIntent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	defaults := model.DefaultSettings()
	s.Theme = defaults.Theme
	if theme != nil && *theme != "" {
		s.Theme = *theme
	}
	s.ShowCompletedTodos = showCompleted == nil || *showCompleted
	s.CalendarRefreshMinutes = defaults.CalendarRefreshMinutes
	if refreshMinutes != nil && *refreshMinutes > 0 {
		s.CalendarRefreshMinutes = *refreshMinutes
	}
	return &s, nil
}

// Push applies cs for userID in one transaction: upserts first, then settings,
// then deletions. Every upsert overwrites all mutable columns.
func (r *SnapshotRepository) Push(ctx context.Context, userID string, cs model.Changeset) error {
	if r.db == nil {
		return errUnbound
	}
	if _, err := r.capabilities(ctx); err != nil {
		return err
	}

	err := r.pushOnce(ctx, userID, cs)
	if err != nil && util.IsSchemaDrift(err) {
		r.logger.Warn("Schema drift on push, re-migrating", zap.String("user_id", userID), zap.Error(err))
		r.invalidate()
		if _, cerr := r.capabilities(ctx); cerr != nil {
			return cerr
		}
		err = r.pushOnce(ctx, userID, cs)
	}
	if err != nil {
		metrics.IncrementSyncOperation("push", "error")
		return err
	}
	metrics.IncrementSyncOperation("push", "ok")
	r.logger.Info("Changeset applied",
		zap.String("user_id", userID),
		zap.Int("rows", cs.Size()),
	)
	return nil
}

func (r *SnapshotRepository) pushOnce(ctx context.Context, userID string, cs model.Changeset) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("push", "snapshot", time.Since(start)) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin push: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now().UTC().Format(time.RFC3339Nano)

	for _, t := range cs.Todos {
		if err := upsertTodo(ctx, tx, userID, t); err != nil {
			return fmt.Errorf("upsert todo %s: %w", t.ID, err)
		}
	}
	for _, h := range cs.Habits {
		if err := upsertHabit(ctx, tx, userID, h); err != nil {
			return fmt.Errorf("upsert habit %s: %w", h.ID, err)
		}
	}
	for _, l := range cs.HabitLogs {
		if err := upsertHabitLog(ctx, tx, userID, l, now); err != nil {
			return fmt.Errorf("upsert habit log %s: %w", l.ID, err)
		}
	}
	for _, s := range cs.CalendarSources {
		if err := upsertCalendarSource(ctx, tx, userID, s, now); err != nil {
			return fmt.Errorf("upsert calendar source %s: %w", s.ID, err)
		}
	}
	if cs.Settings != nil {
		if err := upsertSettings(ctx, tx, userID, *cs.Settings, now); err != nil {
			return fmt.Errorf("upsert settings: %w", err)
		}
	}

	deletions := []struct {
		table string
		ids   []string
	}{
		{"todos", cs.DeletedTodos},
		{"habits", cs.DeletedHabits},
		{"habit_logs", cs.DeletedHabitLogs},
		{"calendar_sources", cs.DeletedCalendarSources},
	}
	for _, d := range deletions {
		if err := deleteIDs(ctx, tx, d.table, userID, d.ids); err != nil {
			return fmt.Errorf("delete from %s: %w", d.table, err)
		}
	}

	return tx.Commit(ctx)
}

// The WHERE on each DO UPDATE keeps a row owned by another user untouched.

func upsertTodo(ctx context.Context, tx pgx.Tx, userID string, t model.Task) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO todos (id, user_id, date, title, notes, link_url, icon, order_num,
                           completed_at, origin_date, dismissed_on_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO UPDATE SET
            date = excluded.date,
            title = excluded.title,
            notes = excluded.notes,
            link_url = excluded.link_url,
            icon = excluded.icon,
            order_num = excluded.order_num,
            completed_at = excluded.completed_at,
            origin_date = excluded.origin_date,
            dismissed_on_date = excluded.dismissed_on_date,
            created_at = excluded.created_at,
            updated_at = excluded.updated_at
        WHERE todos.user_id = excluded.user_id
    `,
		t.ID, userID, t.Date, t.Title, t.Notes, t.LinkURL, t.Icon, t.Order,
		t.CompletedAt, t.OriginDate, t.DismissedOnDate, nullIfEmpty(t.CreatedAt), nullIfEmpty(t.UpdatedAt),
	)
	return err
}

func upsertHabit(ctx context.Context, tx pgx.Tx, userID string, h model.Habit) error {
	schedule, err := json.Marshal(h.Schedule)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
        INSERT INTO habits (id, user_id, title, notes, icon, schedule_json, target_per_day,
                            enabled, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            title = excluded.title,
            notes = excluded.notes,
            icon = excluded.icon,
            schedule_json = excluded.schedule_json,
            target_per_day = excluded.target_per_day,
            enabled = excluded.enabled,
            created_at = excluded.created_at,
            updated_at = excluded.updated_at
        WHERE habits.user_id = excluded.user_id
    `,
		h.ID, userID, h.Title, h.Notes, h.Icon, string(schedule), h.TargetPerDay,
		h.IsEnabled(), nullIfEmpty(h.CreatedAt), nullIfEmpty(h.UpdatedAt),
	)
	return err
}

// upsertHabitLog is keyed by id. Callers resolve the id of an existing
// (habit_id, date) log first, otherwise a second row for the pair appears.
func upsertHabitLog(ctx context.Context, tx pgx.Tx, userID string, l model.HabitLog, now string) error {
	updatedAt := l.UpdatedAt
	if updatedAt == "" {
		updatedAt = now
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO habit_logs (id, user_id, habit_id, date, count, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            habit_id = excluded.habit_id,
            date = excluded.date,
            count = excluded.count,
            updated_at = excluded.updated_at
        WHERE habit_logs.user_id = excluded.user_id
    `, l.ID, userID, l.HabitID, l.Date, l.Count, updatedAt)
	return err
}

func upsertCalendarSource(ctx context.Context, tx pgx.Tx, userID string, s model.CalendarSource, now string) error {
	updatedAt := s.UpdatedAt
	if updatedAt == "" {
		updatedAt = now
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO calendar_sources (id, user_id, name, ics_url, enabled, icon, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            ics_url = excluded.ics_url,
            enabled = excluded.enabled,
            icon = excluded.icon,
            updated_at = excluded.updated_at
        WHERE calendar_sources.user_id = excluded.user_id
    `, s.ID, userID, s.Name, s.ICSURL, s.Enabled, s.Icon, updatedAt)
	return err
}

func upsertSettings(ctx context.Context, tx pgx.Tx, userID string, s model.Settings, now string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO settings (user_id, theme, show_completed_todos, calendar_refresh_minutes,
                              suggest_dates, suggest_habits, suggest_time_intent, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            theme = excluded.theme,
            show_completed_todos = excluded.show_completed_todos,
            calendar_refresh_minutes = excluded.calendar_refresh_minutes,
            suggest_dates = excluded.suggest_dates,
            suggest_habits = excluded.suggest_habits,
            suggest_time_intent = excluded.suggest_time_intent,
            updated_at = excluded.updated_at
    `, userID, s.Theme, s.ShowCompletedTodos, s.CalendarRefreshMinutes,
		s.SuggestDates, s.SuggestHabits, s.SuggestTimeIntent, now)
	return err
}

// deleteIDs removes rows one by one, scoped to the owner. Unknown ids are a
// no-op.
func deleteIDs(ctx context.Context, tx pgx.Tx, table, userID string, ids []string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND user_id = $2", table)
	for _, id := range ids {
		if _, err := tx.Exec(ctx, query, id, userID); err != nil {
			return err
		}
	}
	return nil
}

// backfillTimestamps fills a missing createdAt or updatedAt from the other
// one, or from now when both are missing.
func backfillTimestamps(createdAt, updatedAt *string, now string) (string, string) {
	c, u := deref(createdAt), deref(updatedAt)
	switch {
	case c == "" && u == "":
		return now, now
	case c == "":
		return u, u
	case u == "":
		return c, c
	}
	return c, u
}

func decodeSchedule(raw *string) (model.HabitSchedule, error) {
	fallback := model.HabitSchedule{Type: model.ScheduleDaily}
	if raw == nil || *raw == "" {
		return fallback, nil
	}
	var s model.HabitSchedule
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return fallback, err
	}
	if s.Type == "" {
		return fallback, nil
	}
	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
