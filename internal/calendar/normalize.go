package calendar

import (
	"sort"
	"strings"
	"time"

	"daycard/internal/model"
)

// Normalize drops cancelled events and assigns ids of the form
// {sourceID}-{uid}, which stay identical across fetches of the same feed.
func Normalize(events []ParsedEvent, sourceID string) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if strings.EqualFold(ev.Status, "cancelled") {
			continue
		}
		out = append(out, model.CalendarEvent{
			ID:       sourceID + "-" + ev.UID,
			Title:    ev.Summary,
			Start:    ev.Start,
			End:      ev.End,
			AllDay:   ev.AllDay,
			SourceID: sourceID,
		})
	}
	return out
}

// BucketEventsByDate groups events by the day key of their start in loc.
// Each day lists all-day events first, then timed events by start time.
func BucketEventsByDate(events []model.CalendarEvent, loc *time.Location) map[string][]model.CalendarEvent {
	if loc == nil {
		loc = time.Local
	}
	buckets := make(map[string][]model.CalendarEvent)
	for _, ev := range events {
		key := model.DayKey(ev.Start.In(loc))
		buckets[key] = append(buckets[key], ev)
	}
	for _, list := range buckets {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].AllDay != list[j].AllDay {
				return list[i].AllDay
			}
			return list[i].Start.Before(list[j].Start)
		})
	}
	return buckets
}
