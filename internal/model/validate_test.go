package model

import (
	"testing"

	"daycard/internal/apperr"
)

func TestChangesetValidate(t *testing.T) {
	tests := []struct {
		name    string
		cs      Changeset
		wantErr bool
	}{
		{"empty", Changeset{}, false},
		{"good todo", Changeset{Todos: []Task{{ID: "t1", Date: "2026-01-01"}}}, false},
		{"todo bad date", Changeset{Todos: []Task{{ID: "t1", Date: "01/01/2026"}}}, true},
		{"custom without days", Changeset{Habits: []Habit{{ID: "h", TargetPerDay: 1, Schedule: HabitSchedule{Type: ScheduleCustom}}}}, true},
		{"custom day out of range", Changeset{Habits: []Habit{{ID: "h", TargetPerDay: 1, Schedule: HabitSchedule{Type: ScheduleCustom, DaysOfWeek: []int{7}}}}}, true},
		{"zero target", Changeset{Habits: []Habit{{ID: "h", Schedule: HabitSchedule{Type: ScheduleDaily}}}}, true},
		{"negative count", Changeset{HabitLogs: []HabitLog{{ID: "l", HabitID: "h", Date: "2026-01-01", Count: -1}}}, true},
		{"bad ics url", Changeset{CalendarSources: []CalendarSource{{ID: "c", ICSURL: "not a url"}}}, true},
		{"good ics url", Changeset{CalendarSources: []CalendarSource{{ID: "c", ICSURL: "https://example.com/a.ics"}}}, false},
		{"zero refresh", Changeset{Settings: &Settings{Theme: "dark"}}, true},
		{"negative refresh", Changeset{Settings: &Settings{CalendarRefreshMinutes: -5}}, true},
		{"good settings", Changeset{Settings: &Settings{Theme: "dark", CalendarRefreshMinutes: 30}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cs.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation kind, got %s", apperr.KindOf(err))
			}
		})
	}
}

func TestChangesetSize(t *testing.T) {
	cs := Changeset{
		Todos:        []Task{{ID: "a"}},
		Settings:     &Settings{},
		DeletedTodos: []string{"b", "c"},
	}
	if cs.Size() != 4 || cs.IsEmpty() {
		t.Errorf("expected size 4 and non-empty, got %d", cs.Size())
	}
	if !(Changeset{}).IsEmpty() {
		t.Error("zero changeset should be empty")
	}
}
