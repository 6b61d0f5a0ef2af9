// Package summary renders the short daily digest shown on a day card.
package summary

import (
	"fmt"
	"strings"
	"time"

	"daycard/internal/model"
)

type Input struct {
	Date     time.Time
	Meetings []model.CalendarEvent
	Todos    []model.Task
	Habits   []model.Habit
	Now      time.Time
	Name     string
}

// Build returns two lines: a greeting and the day's load, e.g.
// "You have 2 meetings and 1 task. You're free after 3:30 PM."
func Build(in Input) string {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	greeting := Greeting(in.Now)
	if in.Name != "" {
		greeting += ", " + in.Name
	}

	open := 0
	for _, t := range in.Todos {
		if !t.Done() {
			open++
		}
	}

	var parts []string
	if n := len(in.Meetings); n > 0 {
		parts = append(parts, plural(n, "meeting"))
	}
	if open > 0 {
		parts = append(parts, plural(open, "task"))
	}
	if n := len(in.Habits); n > 0 {
		parts = append(parts, plural(n, "habit"))
	}

	list := "nothing scheduled today"
	if len(parts) > 0 {
		list = joinList(parts)
	}
	return fmt.Sprintf("%s.\nYou have %s. %s", greeting, list, FreeAfter(in.Meetings, in.Date, in.Now))
}

func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	}
	return "Good evening"
}

// FreeAfter says when the last meeting of date ends. On today, meetings that
// already ended are ignored.
func FreeAfter(meetings []model.CalendarEvent, date, now time.Time) string {
	if len(meetings) == 0 {
		return "You're free all day."
	}

	allDay := true
	for _, m := range meetings {
		if !m.AllDay {
			allDay = false
			break
		}
	}
	if allDay {
		return "Busy all day."
	}

	relevant := meetings
	if model.DayKey(date.In(now.Location())) == model.DayKey(now) {
		relevant = nil
		for _, m := range meetings {
			if !m.End.Before(now) {
				relevant = append(relevant, m)
			}
		}
	}
	if len(relevant) == 0 {
		return "You're free all day."
	}

	last := relevant[0]
	for _, m := range relevant[1:] {
		if m.End.After(last.End) {
			last = m
		}
	}
	return fmt.Sprintf("You're free after %s.", last.End.In(now.Location()).Format("3:04 PM"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// joinList joins with commas and a final "and", serial comma included.
func joinList(parts []string) string {
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
