package summary

import (
	"testing"
	"time"

	"daycard/internal/model"
)

func TestBuild(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	done := "2026-03-02T09:00:00Z"

	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "empty day",
			in:   Input{Date: day, Now: day.Add(8 * time.Hour)},
			want: "Good morning.\nYou have nothing scheduled today. You're free all day.",
		},
		{
			name: "busy afternoon",
			in: Input{
				Date: day,
				Now:  day.Add(13 * time.Hour),
				Name: "Sam",
				Meetings: []model.CalendarEvent{
					{Start: day.Add(14 * time.Hour), End: day.Add(15*time.Hour + 30*time.Minute)},
					{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
				},
				Todos:  []model.Task{{ID: "a"}, {ID: "b", CompletedAt: &done}},
				Habits: []model.Habit{{ID: "h1"}, {ID: "h2"}},
			},
			want: "Good afternoon, Sam.\nYou have 2 meetings, 1 task, and 2 habits. You're free after 3:30 PM.",
		},
		{
			name: "all day only",
			in: Input{
				Date:     day,
				Now:      day.Add(20 * time.Hour),
				Meetings: []model.CalendarEvent{{AllDay: true, Start: day, End: day.AddDate(0, 0, 1)}},
			},
			want: "Good evening.\nYou have 1 meeting. Busy all day.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.in); got != tt.want {
				t.Errorf("Build() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestFreeAfterIgnoresFinishedMeetingsToday(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	meetings := []model.CalendarEvent{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}

	if got := FreeAfter(meetings, day, day.Add(11*time.Hour)); got != "You're free all day." {
		t.Errorf("expected free all day once meetings ended, got %q", got)
	}
	dayBefore := day.AddDate(0, 0, -1).Add(11 * time.Hour)
	if got := FreeAfter(meetings, day, dayBefore); got != "You're free after 10:00 AM." {
		t.Errorf("expected future day to keep all meetings, got %q", got)
	}
}
