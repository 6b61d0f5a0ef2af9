package model

import (
	"net/url"
	"strings"

	"daycard/internal/apperr"
)

func (t Task) Validate() error {
	if t.ID == "" {
		return apperr.Validationf("todo: id is required")
	}
	if !IsDayKey(t.Date) {
		return apperr.Validationf("todo %s: date %q is not a day key", t.ID, t.Date)
	}
	return nil
}

func (h Habit) Validate() error {
	if h.ID == "" {
		return apperr.Validationf("habit: id is required")
	}
	if h.TargetPerDay < 1 {
		return apperr.Validationf("habit %s: targetPerDay must be at least 1", h.ID)
	}
	switch h.Schedule.Type {
	case ScheduleDaily, ScheduleWeekdays, ScheduleWeekends:
	case ScheduleCustom:
		if len(h.Schedule.DaysOfWeek) == 0 {
			return apperr.Validationf("habit %s: custom schedule needs daysOfWeek", h.ID)
		}
		for _, d := range h.Schedule.DaysOfWeek {
			if d < 0 || d > 6 {
				return apperr.Validationf("habit %s: day of week %d out of range", h.ID, d)
			}
		}
	default:
		return apperr.Validationf("habit %s: unknown schedule type %q", h.ID, h.Schedule.Type)
	}
	return nil
}

func (l HabitLog) Validate() error {
	if l.ID == "" || l.HabitID == "" {
		return apperr.Validationf("habitLog: id and habitId are required")
	}
	if !IsDayKey(l.Date) {
		return apperr.Validationf("habitLog %s: date %q is not a day key", l.ID, l.Date)
	}
	if l.Count < 0 {
		return apperr.Validationf("habitLog %s: count must not be negative", l.ID)
	}
	return nil
}

func (s CalendarSource) Validate() error {
	if s.ID == "" {
		return apperr.Validationf("calendarSource: id is required")
	}
	u, err := url.Parse(strings.TrimSpace(s.ICSURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperr.Validationf("calendarSource %s: icsUrl is not a valid URL", s.ID)
	}
	return nil
}

// Validate rejects values the remote store would otherwise have to rewrite.
func (s Settings) Validate() error {
	if s.CalendarRefreshMinutes < 1 {
		return apperr.Validationf("settings: calendarRefreshMinutes must be at least 1")
	}
	return nil
}

// Validate checks every row of the changeset and returns the first problem.
func (c Changeset) Validate() error {
	for _, t := range c.Todos {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, h := range c.Habits {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	for _, l := range c.HabitLogs {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	for _, s := range c.CalendarSources {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if c.Settings != nil {
		return c.Settings.Validate()
	}
	return nil
}
