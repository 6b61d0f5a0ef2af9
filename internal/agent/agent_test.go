package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"daycard/internal/calendar"
	"daycard/internal/model"
)

type fakeSyncer struct {
	mu       sync.Mutex
	sessions int
	pushes   int
}

func (f *fakeSyncer) StartSession(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return true, nil
}

func (f *fakeSyncer) PushPending(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	return 0, nil
}

type fakeStore struct {
	settings model.Settings
	sources  []model.CalendarSource
	todos    map[string][]model.Task
	habits   []model.Habit
}

func (f *fakeStore) GetSettings(context.Context) (model.Settings, error) { return f.settings, nil }

func (f *fakeStore) EnabledCalendarSources(context.Context) ([]model.CalendarSource, error) {
	return f.sources, nil
}

func (f *fakeStore) ListTasksByDate(_ context.Context, date string) ([]model.Task, error) {
	return f.todos[date], nil
}

func (f *fakeStore) ListHabits(context.Context) ([]model.Habit, error) { return f.habits, nil }

type fakeIngester struct {
	mu     sync.Mutex
	calls  int
	report calendar.Report
}

func (f *fakeIngester) Ingest(_ context.Context, sources []model.CalendarSource) calendar.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestRefreshSpec(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "@every 15m"},
		{-3, "@every 15m"},
		{5, "@every 5m"},
	}
	for _, tt := range tests {
		if got := RefreshSpec(model.Settings{CalendarRefreshMinutes: tt.minutes}); got != tt.want {
			t.Errorf("RefreshSpec(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestDailySpec(t *testing.T) {
	got, err := DailySpec("07:30")
	if err != nil {
		t.Fatalf("DailySpec: %v", err)
	}
	if got != "0 30 7 * * *" {
		t.Errorf("unexpected spec %q", got)
	}
	if _, err := DailySpec("7.30"); err == nil {
		t.Error("expected error for malformed time")
	}
}

func TestRefreshKeepsLatestReport(t *testing.T) {
	report := calendar.Report{
		Events: []model.CalendarEvent{{ID: "s1-a", Title: "Standup", Start: at(2026, 3, 2, 9, 0), SourceID: "s1"}},
		Results: []calendar.SourceResult{
			{SourceID: "s1", Name: "Work", Events: 1},
			{SourceID: "s2", Name: "Broken", Err: errors.New("Fetch failed")},
		},
	}
	ing := &fakeIngester{report: report}
	a := New(&fakeSyncer{}, &fakeStore{sources: []model.CalendarSource{{ID: "s1"}, {ID: "s2"}}}, ing, Options{}, zap.NewNop())

	got := a.RefreshCalendars(context.Background())
	if len(got.Events) != 1 || len(got.Failed()) != 1 {
		t.Fatalf("unexpected report %+v", got)
	}
	if len(a.Latest().Events) != 1 {
		t.Error("expected latest report to be kept")
	}
}

func TestStartRunsSessionAndFirstRefresh(t *testing.T) {
	syncer := &fakeSyncer{}
	ing := &fakeIngester{}
	a := New(syncer, &fakeStore{}, ing, Options{PushSpec: "@every 1h", DigestAt: "08:00"}, zap.NewNop())

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if syncer.sessions != 1 {
		t.Errorf("expected one session pull, got %d", syncer.sessions)
	}
	ing.mu.Lock()
	calls := ing.calls
	ing.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected an immediate refresh, got %d", calls)
	}
	if n := len(a.cron.Entries()); n != 3 {
		t.Errorf("expected 3 scheduled jobs, got %d", n)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	a := New(&fakeSyncer{}, &fakeStore{}, &fakeIngester{}, Options{PushSpec: "every now and then"}, zap.NewNop())
	if err := a.Start(context.Background()); err == nil {
		a.Stop()
		t.Fatal("expected invalid push spec to fail")
	}
}

func TestDigest(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday
	store := &fakeStore{
		todos: map[string][]model.Task{
			"2026-03-02": {{ID: "t1", Date: "2026-03-02", Title: "Write report"}},
		},
		habits: []model.Habit{
			{ID: "h1", Title: "Run", Schedule: model.HabitSchedule{Type: model.ScheduleWeekends}, TargetPerDay: 1},
			{ID: "h2", Title: "Read", Schedule: model.HabitSchedule{Type: model.ScheduleDaily}, TargetPerDay: 1},
		},
	}
	report := calendar.Report{Events: []model.CalendarEvent{
		{ID: "s1-a", Title: "Standup", Start: at(2026, 3, 2, 9, 0), End: at(2026, 3, 2, 9, 30), SourceID: "s1"},
		{ID: "s1-b", Title: "Later", Start: at(2026, 3, 3, 9, 0), End: at(2026, 3, 3, 10, 0), SourceID: "s1"},
	}}

	text, err := Digest(context.Background(), store, report, now, "Sam")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	for _, want := range []string{"Sam", "1 meeting", "1 task", "1 habit"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in digest %q", want, text)
		}
	}
}
