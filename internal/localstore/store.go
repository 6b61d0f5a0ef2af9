// Package localstore is the on-device copy of the planner: five collections
// in an embedded SQLite file plus a journal of changes not yet pushed.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"daycard/internal/model"
)

// Collection names double as table names and journal keys.
const (
	CollectionTodos           = "todos"
	CollectionHabits          = "habits"
	CollectionHabitLogs       = "habit_logs"
	CollectionCalendarSources = "calendar_sources"
	CollectionSettings        = "settings"
)

const settingsKey = "settings"

const schema = `
CREATE TABLE IF NOT EXISTS todos (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_todos_date ON todos(date);

CREATE TABLE IF NOT EXISTS habits (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS habit_logs (
    id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL,
    date TEXT NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_habit_logs_date ON habit_logs(date);
CREATE INDEX IF NOT EXISTS idx_habit_logs_habit_date ON habit_logs(habit_id, date);

CREATE TABLE IF NOT EXISTS calendar_sources (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_changes (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    op TEXT NOT NULL,
    queued_at INTEGER NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// Store is a single-device SQLite store. All access goes through one
// connection, so writes never contend with each other.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// Open creates (if needed) and opens the store at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: conn, path: path, logger: logger, now: time.Now}
	if err := s.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the collections and indexes. Idempotent.
func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Path() string { return s.path }

// Close checkpoints the WAL and closes the file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("WAL checkpoint failed", zap.Error(err))
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func insertTask(ctx context.Context, ex execer, t model.Task) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO todos (id, date, data) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET date = excluded.date, data = excluded.data`,
		t.ID, t.Date, data)
	return err
}

func insertHabit(ctx context.Context, ex execer, h model.Habit) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO habits (id, data) VALUES (?, ?)
         ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		h.ID, data)
	return err
}

func insertHabitLog(ctx context.Context, ex execer, l model.HabitLog) error {
	data, err := encode(l)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO habit_logs (id, habit_id, date, data) VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET habit_id = excluded.habit_id, date = excluded.date, data = excluded.data`,
		l.ID, l.HabitID, l.Date, data)
	return err
}

func insertCalendarSource(ctx context.Context, ex execer, c model.CalendarSource) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO calendar_sources (id, data) VALUES (?, ?)
         ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		c.ID, data)
	return err
}

func insertSettings(ctx context.Context, ex execer, st model.Settings) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO settings (key, data) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET data = excluded.data`,
		settingsKey, data)
	return err
}

// Apply replaces all five collections with snap in one transaction and
// drops the pending journal. Either every collection is replaced or none is.
func (s *Store) Apply(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("apply: nil snapshot")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{
		CollectionTodos, CollectionHabits, CollectionHabitLogs,
		CollectionCalendarSources, CollectionSettings, "pending_changes",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, t := range snap.Todos {
		if err := insertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("failed to insert todo %s: %w", t.ID, err)
		}
	}
	for _, h := range snap.Habits {
		if err := insertHabit(ctx, tx, h); err != nil {
			return fmt.Errorf("failed to insert habit %s: %w", h.ID, err)
		}
	}
	for _, l := range snap.HabitLogs {
		if err := insertHabitLog(ctx, tx, l); err != nil {
			return fmt.Errorf("failed to insert habit log %s: %w", l.ID, err)
		}
	}
	for _, c := range snap.CalendarSources {
		if err := insertCalendarSource(ctx, tx, c); err != nil {
			return fmt.Errorf("failed to insert calendar source %s: %w", c.ID, err)
		}
	}
	if snap.Settings != nil {
		if err := insertSettings(ctx, tx, *snap.Settings); err != nil {
			return fmt.Errorf("failed to insert settings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit apply: %w", err)
	}

	s.logger.Info("Snapshot applied",
		zap.Int("todos", len(snap.Todos)),
		zap.Int("habits", len(snap.Habits)),
		zap.Int("habit_logs", len(snap.HabitLogs)),
		zap.Int("calendar_sources", len(snap.CalendarSources)),
	)
	return nil
}

// Snapshot reads every collection. Settings is nil when none was ever saved.
func (s *Store) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	var err error

	if snap.Todos, err = queryAll[model.Task](ctx, s.db, "SELECT data FROM todos ORDER BY date, id"); err != nil {
		return nil, fmt.Errorf("read todos: %w", err)
	}
	if snap.Habits, err = queryAll[model.Habit](ctx, s.db, "SELECT data FROM habits ORDER BY id"); err != nil {
		return nil, fmt.Errorf("read habits: %w", err)
	}
	if snap.HabitLogs, err = queryAll[model.HabitLog](ctx, s.db, "SELECT data FROM habit_logs ORDER BY date, habit_id"); err != nil {
		return nil, fmt.Errorf("read habit logs: %w", err)
	}
	if snap.CalendarSources, err = queryAll[model.CalendarSource](ctx, s.db, "SELECT data FROM calendar_sources ORDER BY id"); err != nil {
		return nil, fmt.Errorf("read calendar sources: %w", err)
	}
	settings, err := queryAll[model.Settings](ctx, s.db, "SELECT data FROM settings WHERE key = ?", settingsKey)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(settings) > 0 {
		snap.Settings = &settings[0]
	}
	snap.Normalize()
	return snap, nil
}

// queryAll decodes the JSON data column of every returned row.
func queryAll[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// queryOne returns nil when no row matches.
func queryOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	items, err := queryAll[T](ctx, db, query, args...)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}
