package model

// Task is a to-do on a single day. Timestamps are ISO-8601 strings so the
// remote watermark comparison stays lexicographic.
type Task struct {
	ID              string   `json:"id"`
	Date            string   `json:"date"`
	Title           string   `json:"title"`
	Notes           *string  `json:"notes,omitempty"`
	LinkURL         *string  `json:"linkUrl,omitempty"`
	Icon            *string  `json:"icon,omitempty"`
	Order           *float64 `json:"order,omitempty"`
	CompletedAt     *string  `json:"completedAt,omitempty"`
	OriginDate      *string  `json:"originDate,omitempty"`
	DismissedOnDate *string  `json:"dismissedOnDate,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// Done reports whether the task has been completed.
func (t Task) Done() bool {
	return t.CompletedAt != nil && *t.CompletedAt != ""
}

type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekdays ScheduleType = "weekdays"
	ScheduleWeekends ScheduleType = "weekends"
	ScheduleCustom   ScheduleType = "custom"
)

// HabitSchedule says on which weekdays a habit is due. DaysOfWeek uses
// 0=Sunday..6=Saturday and is only read for ScheduleCustom.
type HabitSchedule struct {
	Type       ScheduleType `json:"type"`
	DaysOfWeek []int        `json:"daysOfWeek,omitempty"`
}

type Habit struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Notes        *string       `json:"notes,omitempty"`
	Icon         *string       `json:"icon,omitempty"`
	Schedule     HabitSchedule `json:"schedule"`
	TargetPerDay int           `json:"targetPerDay"`
	Enabled      *bool         `json:"enabled,omitempty"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt"`
}

// IsEnabled treats an unset flag as enabled.
func (h Habit) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// HabitLog counts completions of a habit on one day. At most one log exists
// per (HabitID, Date).
type HabitLog struct {
	ID        string `json:"id"`
	HabitID   string `json:"habitId"`
	Date      string `json:"date"`
	Count     int    `json:"count"`
	UpdatedAt string `json:"updatedAt"`
}

type CalendarSource struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	ICSURL  string  `json:"icsUrl"`
	Enabled bool    `json:"enabled"`
	Icon    *string `json:"icon,omitempty"`
	// UpdatedAt is stamped by the stores when absent so incremental pulls can
	// filter sources like the other collections.
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Settings is the per-user singleton.
type Settings struct {
	Theme                  string `json:"theme"`
	ShowCompletedTodos     bool   `json:"showCompletedTodos"`
	CalendarRefreshMinutes int    `json:"calendarRefreshMinutes"`
	SuggestDates           *bool  `json:"suggestDates,omitempty"`
	SuggestHabits          *bool  `json:"suggestHabits,omitempty"`
	SuggestTimeIntent      *bool  `json:"suggestTimeIntent,omitempty"`
}

const DefaultCalendarRefreshMinutes = 15

// DefaultSettings is what a fresh device reports before any settings row exists.
func DefaultSettings() Settings {
	return Settings{
		Theme:                  "system",
		ShowCompletedTodos:     true,
		CalendarRefreshMinutes: DefaultCalendarRefreshMinutes,
	}
}
