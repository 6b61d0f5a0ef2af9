package repository

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"daycard/pkg/util"
)

// baseSchema is the oldest layout the store still has to read from. Every
// later column arrives through additiveMigrations.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS todos (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        date TEXT NOT NULL,
        title TEXT NOT NULL DEFAULT '',
        notes TEXT,
        completed_at TEXT,
        created_at TEXT,
        updated_at TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS habits (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        title TEXT NOT NULL DEFAULT '',
        notes TEXT,
        schedule_json TEXT,
        target_per_day INTEGER NOT NULL DEFAULT 1,
        created_at TEXT,
        updated_at TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS habit_logs (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        habit_id TEXT NOT NULL,
        date TEXT NOT NULL,
        count INTEGER NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS calendar_sources (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        ics_url TEXT NOT NULL,
        enabled BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS settings (
        user_id TEXT PRIMARY KEY,
        theme TEXT NOT NULL DEFAULT 'system',
        show_completed_todos BOOLEAN NOT NULL DEFAULT TRUE,
        calendar_refresh_minutes INTEGER NOT NULL DEFAULT 15
    )`,
	`CREATE INDEX IF NOT EXISTS idx_todos_user_updated ON todos(user_id, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_habit_logs_user_habit_date ON habit_logs(user_id, habit_id, date)`,
}

// additiveMigrations is applied in order on every probe. A column that is
// already there fails with 42701, which is expected and swallowed.
var additiveMigrations = []string{
	`ALTER TABLE todos ADD COLUMN link_url TEXT`,
	`ALTER TABLE todos ADD COLUMN icon TEXT`,
	`ALTER TABLE todos ADD COLUMN order_num DOUBLE PRECISION`,
	`ALTER TABLE todos ADD COLUMN origin_date TEXT`,
	`ALTER TABLE todos ADD COLUMN dismissed_on_date TEXT`,
	`ALTER TABLE habits ADD COLUMN icon TEXT`,
	`ALTER TABLE habits ADD COLUMN enabled BOOLEAN`,
	`ALTER TABLE habit_logs ADD COLUMN updated_at TEXT`,
	`ALTER TABLE calendar_sources ADD COLUMN icon TEXT`,
	`ALTER TABLE calendar_sources ADD COLUMN updated_at TEXT`,
	`ALTER TABLE settings ADD COLUMN suggest_dates BOOLEAN`,
	`ALTER TABLE settings ADD COLUMN suggest_habits BOOLEAN`,
	`ALTER TABLE settings ADD COLUMN suggest_time_intent BOOLEAN`,
	`ALTER TABLE settings ADD COLUMN updated_at TEXT`,
}

// column is one projected column and the SQL type used when it has to be
// substituted by a typed NULL.
type column struct {
	name string
	typ  string
}

var (
	todoColumns = []column{
		{"id", "text"}, {"date", "text"}, {"title", "text"}, {"notes", "text"},
		{"link_url", "text"}, {"icon", "text"}, {"order_num", "double precision"},
		{"completed_at", "text"}, {"origin_date", "text"}, {"dismissed_on_date", "text"},
		{"created_at", "text"}, {"updated_at", "text"},
	}
	habitColumns = []column{
		{"id", "text"}, {"title", "text"}, {"notes", "text"}, {"icon", "text"},
		{"schedule_json", "text"}, {"target_per_day", "integer"}, {"enabled", "boolean"},
		{"created_at", "text"}, {"updated_at", "text"},
	}
	habitLogColumns = []column{
		{"id", "text"}, {"habit_id", "text"}, {"date", "text"}, {"count", "integer"},
		{"updated_at", "text"},
	}
	calendarSourceColumns = []column{
		{"id", "text"}, {"name", "text"}, {"ics_url", "text"}, {"enabled", "boolean"},
		{"icon", "text"}, {"updated_at", "text"},
	}
	settingsColumns = []column{
		{"theme", "text"}, {"show_completed_todos", "boolean"},
		{"calendar_refresh_minutes", "integer"}, {"suggest_dates", "boolean"},
		{"suggest_habits", "boolean"}, {"suggest_time_intent", "boolean"},
	}
)

var snapshotTables = []string{"todos", "habits", "habit_logs", "calendar_sources", "settings"}

// schemaCaps records which columns each table actually has.
type schemaCaps map[string]map[string]bool

func (c schemaCaps) has(table, col string) bool {
	return c[table][col]
}

// projection renders cols for a SELECT, replacing missing columns with a
// typed NULL so the scan layout never changes.
func projection(caps schemaCaps, table string, cols []column) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		if caps.has(table, col.name) {
			parts[i] = col.name
		} else {
			parts[i] = fmt.Sprintf("NULL::%s AS %s", col.typ, col.name)
		}
	}
	return strings.Join(parts, ", ")
}

// selectSince builds the per-user read for a collection. The watermark is
// only applied when the table carries updated_at; rows that predate the
// column have it NULL and are always returned.
func selectSince(caps schemaCaps, table string, cols []column, userID, since string) (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = $1", projection(caps, table, cols), table)
	args := []any{userID}
	if caps.has(table, "updated_at") {
		query += " AND (updated_at IS NULL OR updated_at > $2)"
		args = append(args, since)
	}
	return query, args
}

// migrate creates the base tables and applies every additive migration.
func (r *SnapshotRepository) migrate(ctx context.Context) error {
	for _, stmt := range baseSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create base schema: %w", err)
		}
	}
	applied := 0
	for _, stmt := range additiveMigrations {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			if util.IsDuplicateColumn(err) {
				continue
			}
			r.logger.Warn("Additive migration failed", zap.String("sql", stmt), zap.Error(err))
			continue
		}
		applied++
	}
	if applied > 0 {
		r.logger.Info("Applied schema migrations", zap.Int("count", applied))
	}
	return nil
}

// probe reads the live column set of the snapshot tables.
func (r *SnapshotRepository) probe(ctx context.Context) (schemaCaps, error) {
	rows, err := r.db.Query(ctx, `
        SELECT table_name, column_name
        FROM information_schema.columns
        WHERE table_schema = current_schema() AND table_name = ANY($1)
    `, snapshotTables)
	if err != nil {
		return nil, fmt.Errorf("probe schema: %w", err)
	}
	defer rows.Close()

	caps := schemaCaps{}
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		if caps[table] == nil {
			caps[table] = map[string]bool{}
		}
		caps[table][col] = true
	}
	return caps, rows.Err()
}

// capabilities migrates and probes once per process, then serves the cache.
func (r *SnapshotRepository) capabilities(ctx context.Context) (schemaCaps, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.caps != nil {
		return r.caps, nil
	}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	caps, err := r.probe(ctx)
	if err != nil {
		return nil, err
	}
	r.caps = caps
	return caps, nil
}

func (r *SnapshotRepository) invalidate() {
	r.mu.Lock()
	r.caps = nil
	r.mu.Unlock()
}
