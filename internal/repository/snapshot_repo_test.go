package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/internal/model"
	"daycard/pkg/util"
)

func TestProjectionSubstitutesMissingColumns(t *testing.T) {
	caps := schemaCaps{"habit_logs": {"id": true, "habit_id": true, "date": true, "count": true}}

	got := projection(caps, "habit_logs", habitLogColumns)
	want := "id, habit_id, date, count, NULL::text AS updated_at"
	if got != want {
		t.Errorf("projection = %q, want %q", got, want)
	}
}

func TestSelectSinceAppliesWatermarkOnlyWithUpdatedAt(t *testing.T) {
	withUpdated := schemaCaps{"todos": {"id": true, "updated_at": true}}
	query, args := selectSince(withUpdated, "todos", todoColumns, "u1", "2026-01-01")
	if !strings.Contains(query, "updated_at > $2") || len(args) != 2 {
		t.Errorf("expected watermark filter, got %q %v", query, args)
	}

	legacy := schemaCaps{"calendar_sources": {"id": true, "ics_url": true}}
	query, args = selectSince(legacy, "calendar_sources", calendarSourceColumns, "u1", "2026-01-01")
	if strings.Contains(query, "$2") || len(args) != 1 {
		t.Errorf("expected no watermark on legacy table, got %q %v", query, args)
	}
	if !strings.Contains(query, "WHERE user_id = $1") {
		t.Errorf("expected user scoping, got %q", query)
	}
}

func TestBackfillTimestamps(t *testing.T) {
	created := "2026-01-01T00:00:00Z"
	updated := "2026-01-02T00:00:00Z"
	now := "2026-05-05T00:00:00Z"

	tests := []struct {
		name                 string
		createdAt, updatedAt *string
		wantC, wantU         string
	}{
		{"both", &created, &updated, created, updated},
		{"only created", &created, nil, created, created},
		{"only updated", nil, &updated, updated, updated},
		{"neither", nil, nil, now, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, u := backfillTimestamps(tt.createdAt, tt.updatedAt, now)
			if c != tt.wantC || u != tt.wantU {
				t.Errorf("got (%s, %s), want (%s, %s)", c, u, tt.wantC, tt.wantU)
			}
		})
	}
}

func TestDecodeSchedule(t *testing.T) {
	raw := `{"type":"custom","daysOfWeek":[1,3]}`
	s, err := decodeSchedule(&raw)
	if err != nil {
		t.Fatalf("decodeSchedule: %v", err)
	}
	if s.Type != model.ScheduleCustom || len(s.DaysOfWeek) != 2 {
		t.Errorf("unexpected schedule %+v", s)
	}

	bad := "{"
	s, err = decodeSchedule(&bad)
	if err == nil || s.Type != model.ScheduleDaily {
		t.Errorf("expected daily fallback with error, got %+v %v", s, err)
	}

	s, err = decodeSchedule(nil)
	if err != nil || s.Type != model.ScheduleDaily {
		t.Errorf("expected daily for missing schedule, got %+v %v", s, err)
	}
}

func TestUnboundRepositoryReturnsConfigError(t *testing.T) {
	repo := NewSnapshotRepository(nil, zap.NewNop())
	ctx := context.Background()

	if _, err := repo.Pull(ctx, "default", ""); !apperr.Is(err, apperr.KindConfig) {
		t.Errorf("Pull: expected config error, got %v", err)
	}
	if err := repo.Push(ctx, "default", model.Changeset{}); !apperr.Is(err, apperr.KindConfig) {
		t.Errorf("Push: expected config error, got %v", err)
	}
}

func TestEveryMigrationIsAdditive(t *testing.T) {
	for _, stmt := range additiveMigrations {
		if !strings.Contains(stmt, "ADD COLUMN") {
			t.Errorf("non-additive migration: %s", stmt)
		}
	}
}

// legacyColumns is the base schema before any additive migration.
func legacyColumns() map[string][]string {
	return map[string][]string{
		"todos":            {"id", "user_id", "date", "title", "notes", "completed_at", "created_at", "updated_at"},
		"habits":           {"id", "user_id", "title", "notes", "schedule_json", "target_per_day", "created_at", "updated_at"},
		"habit_logs":       {"id", "user_id", "habit_id", "date", "count"},
		"calendar_sources": {"id", "user_id", "name", "ics_url", "enabled"},
		"settings":         {"user_id", "theme", "show_completed_todos", "calendar_refresh_minutes"},
	}
}

func newFakeRepo(db *fakePG) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC) },
	}
}

func TestPullRetriesOnceAfterSchemaDrift(t *testing.T) {
	db := newFakePG(legacyColumns())
	db.driftPulls = 1
	repo := newFakeRepo(db)

	if _, err := repo.Pull(context.Background(), "u1", ""); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if db.probes != 2 {
		t.Errorf("expected the schema to be probed again after drift, got %d probes", db.probes)
	}
	if n := db.count("CREATE TABLE IF NOT EXISTS todos"); n != 2 {
		t.Errorf("expected migrations to run again after drift, ran %d times", n)
	}
}

func TestPullSurfacesRepeatedSchemaDrift(t *testing.T) {
	db := newFakePG(legacyColumns())
	db.driftPulls = 2
	repo := newFakeRepo(db)

	_, err := repo.Pull(context.Background(), "u1", "")
	if err == nil || !util.IsSchemaDrift(err) {
		t.Fatalf("expected the second drift to be returned, got %v", err)
	}
	if db.probes != 2 {
		t.Errorf("expected exactly one retry, got %d probes", db.probes)
	}
}

func TestCapabilitiesProbedOncePerProcess(t *testing.T) {
	db := newFakePG(legacyColumns())
	repo := newFakeRepo(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Pull(ctx, "u1", ""); err != nil {
			t.Fatalf("Pull %d: %v", i, err)
		}
	}
	if db.probes != 1 || db.count("CREATE TABLE IF NOT EXISTS todos") != 1 {
		t.Errorf("expected one migrate and probe, got %d probes", db.probes)
	}
}

func TestPullReadsLegacySchema(t *testing.T) {
	db := newFakePG(legacyColumns())
	db.rows["todos"] = [][]any{
		{"t1", "2026-03-02", "Legacy", nil, nil, nil, nil, nil, nil, nil, "2026-01-01T00:00:00Z", nil},
	}
	db.rows["habits"] = [][]any{
		{"h1", "Stretch", nil, nil, nil, nil, nil, nil, nil},
	}
	db.rows["habit_logs"] = [][]any{
		{"l1", "h1", "2026-03-02", 2, nil},
	}
	db.rows["calendar_sources"] = [][]any{
		{"c1", nil, "https://example.com/a.ics", nil, nil, nil},
	}
	db.rows["settings"] = [][]any{
		{"dark", nil, 0, nil, nil, nil},
	}
	repo := newFakeRepo(db)

	snap, err := repo.Pull(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}

	if len(snap.Todos) != 1 {
		t.Fatalf("expected one todo, got %+v", snap.Todos)
	}
	todo := snap.Todos[0]
	if todo.Order != nil || todo.LinkURL != nil || todo.UpdatedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("expected NULL extras and updatedAt backfilled from createdAt, got %+v", todo)
	}

	habit := snap.Habits[0]
	if habit.TargetPerDay != 1 || habit.Schedule.Type != model.ScheduleDaily || !habit.IsEnabled() {
		t.Errorf("expected legacy habit defaults, got %+v", habit)
	}
	if habit.CreatedAt != "2026-05-05T00:00:00Z" || habit.UpdatedAt != habit.CreatedAt {
		t.Errorf("expected both timestamps backfilled from now, got %s %s", habit.CreatedAt, habit.UpdatedAt)
	}

	if l := snap.HabitLogs[0]; l.Count != 2 || l.UpdatedAt != "2026-05-05T00:00:00Z" {
		t.Errorf("unexpected habit log %+v", l)
	}
	if c := snap.CalendarSources[0]; !c.Enabled || c.Name != "" {
		t.Errorf("expected NULL enabled to read as enabled, got %+v", c)
	}
	if snap.Settings == nil || snap.Settings.CalendarRefreshMinutes != model.DefaultCalendarRefreshMinutes || !snap.Settings.ShowCompletedTodos {
		t.Errorf("expected legacy settings defaults, got %+v", snap.Settings)
	}

	joined := strings.Join(db.queries, "\n")
	for _, want := range []string{
		"NULL::double precision AS order_num",
		"NULL::boolean AS enabled",
		"NULL::text AS updated_at FROM habit_logs",
		"NULL::boolean AS suggest_dates",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected typed NULL %q in queries:\n%s", want, joined)
		}
	}
}

func TestPushRetriesOnceAfterSchemaDrift(t *testing.T) {
	cs := model.Changeset{Todos: []model.Task{{ID: "t1", Date: "2026-03-02", Title: "x"}}}

	db := newFakePG(legacyColumns())
	db.driftPushes = 1
	if err := newFakeRepo(db).Push(context.Background(), "u1", cs); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if db.commits != 1 || db.probes != 2 {
		t.Errorf("expected one commit after re-probing, got commits=%d probes=%d", db.commits, db.probes)
	}

	db = newFakePG(legacyColumns())
	db.driftPushes = 2
	err := newFakeRepo(db).Push(context.Background(), "u1", cs)
	if err == nil || !util.IsSchemaDrift(err) {
		t.Fatalf("expected the second drift to be returned, got %v", err)
	}
	if db.commits != 0 {
		t.Errorf("a failed push must not commit, got %d", db.commits)
	}
}

func TestPushWritesSettingsAsGiven(t *testing.T) {
	db := newFakePG(legacyColumns())
	cs := model.Changeset{Settings: &model.Settings{Theme: "dark", CalendarRefreshMinutes: 45}}
	if err := newFakeRepo(db).Push(context.Background(), "u1", cs); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if db.count("INSERT INTO settings") != 1 || db.commits != 1 {
		t.Errorf("expected one settings upsert committed, got execs %v", db.execs)
	}
}
