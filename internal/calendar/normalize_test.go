package calendar

import (
	"testing"
	"time"

	"daycard/internal/model"
)

func TestNormalizeDropsCancelledAnyCase(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parsed := []ParsedEvent{
		{UID: "keep", Summary: "Keep", Start: start, End: start, Status: "CONFIRMED"},
		{UID: "c1", Summary: "Gone", Start: start, End: start, Status: "CANCELLED"},
		{UID: "c2", Summary: "Gone", Start: start, End: start, Status: "cancelled"},
		{UID: "c3", Summary: "Gone", Start: start, End: start, Status: "Cancelled"},
	}

	events := Normalize(parsed, "work")
	if len(events) != 1 {
		t.Fatalf("expected only the confirmed event, got %+v", events)
	}
	if events[0].ID != "work-keep" || events[0].SourceID != "work" {
		t.Errorf("unexpected normalized event %+v", events[0])
	}
}

func TestBucketEventsByDatePutsAllDayFirst(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []model.CalendarEvent{
		{ID: "late", Start: day.Add(15 * time.Hour)},
		{ID: "early", Start: day.Add(8 * time.Hour)},
		{ID: "allday", Start: day, AllDay: true},
		{ID: "tomorrow", Start: day.Add(26 * time.Hour)},
	}

	buckets := BucketEventsByDate(events, time.UTC)
	got := buckets["2026-03-02"]
	if len(got) != 3 {
		t.Fatalf("expected 3 events on 2026-03-02, got %+v", got)
	}
	want := []string{"allday", "early", "late"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
	if len(buckets["2026-03-03"]) != 1 {
		t.Errorf("expected next-day bucket, got %+v", buckets)
	}
}

func TestBucketUsesLocalDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	ev := model.CalendarEvent{ID: "x", Start: time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)}
	buckets := BucketEventsByDate([]model.CalendarEvent{ev}, tokyo)
	if _, ok := buckets["2026-03-03"]; !ok {
		t.Errorf("expected event bucketed on the local day, got %v", buckets)
	}
}
