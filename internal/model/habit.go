package model

import "time"

// IsHabitDue reports whether h should be done on date's weekday.
// A disabled habit is never due.
func IsHabitDue(h Habit, date time.Time) bool {
	if !h.IsEnabled() {
		return false
	}
	day := int(date.Weekday())
	switch h.Schedule.Type {
	case ScheduleDaily:
		return true
	case ScheduleWeekdays:
		return day >= 1 && day <= 5
	case ScheduleWeekends:
		return day == 0 || day == 6
	case ScheduleCustom:
		for _, d := range h.Schedule.DaysOfWeek {
			if d == day {
				return true
			}
		}
		return false
	}
	return false
}

// DueHabits filters habits to those due on date.
func DueHabits(habits []Habit, date time.Time) []Habit {
	var due []Habit
	for _, h := range habits {
		if IsHabitDue(h, date) {
			due = append(due, h)
		}
	}
	return due
}
