package model

// Snapshot is the full state of the five collections for one user.
type Snapshot struct {
	Todos           []Task           `json:"todos"`
	Habits          []Habit          `json:"habits"`
	HabitLogs       []HabitLog       `json:"habitLogs"`
	CalendarSources []CalendarSource `json:"calendarSources"`
	Settings        *Settings        `json:"settings"`
}

// Normalize replaces nil collections with empty ones so they encode as [].
func (s *Snapshot) Normalize() {
	if s.Todos == nil {
		s.Todos = []Task{}
	}
	if s.Habits == nil {
		s.Habits = []Habit{}
	}
	if s.HabitLogs == nil {
		s.HabitLogs = []HabitLog{}
	}
	if s.CalendarSources == nil {
		s.CalendarSources = []CalendarSource{}
	}
}

// Changeset is the body of a push: upserts plus tombstones per collection.
type Changeset struct {
	Todos           []Task           `json:"todos,omitempty"`
	Habits          []Habit          `json:"habits,omitempty"`
	HabitLogs       []HabitLog       `json:"habitLogs,omitempty"`
	CalendarSources []CalendarSource `json:"calendarSources,omitempty"`
	Settings        *Settings        `json:"settings,omitempty"`

	DeletedTodos           []string `json:"deletedTodos,omitempty"`
	DeletedHabits          []string `json:"deletedHabits,omitempty"`
	DeletedHabitLogs       []string `json:"deletedHabitLogs,omitempty"`
	DeletedCalendarSources []string `json:"deletedCalendarSources,omitempty"`
}

// IsEmpty reports a changeset that would write nothing.
func (c Changeset) IsEmpty() bool {
	return len(c.Todos) == 0 && len(c.Habits) == 0 && len(c.HabitLogs) == 0 &&
		len(c.CalendarSources) == 0 && c.Settings == nil &&
		len(c.DeletedTodos) == 0 && len(c.DeletedHabits) == 0 &&
		len(c.DeletedHabitLogs) == 0 && len(c.DeletedCalendarSources) == 0
}

// Size is the number of rows the changeset touches.
func (c Changeset) Size() int {
	n := len(c.Todos) + len(c.Habits) + len(c.HabitLogs) + len(c.CalendarSources) +
		len(c.DeletedTodos) + len(c.DeletedHabits) + len(c.DeletedHabitLogs) + len(c.DeletedCalendarSources)
	if c.Settings != nil {
		n++
	}
	return n
}
