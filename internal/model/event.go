package model

import "time"

// CalendarEvent is a normalized feed entry. It is derived on every ingestion
// and never persisted.
type CalendarEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay"`
	SourceID string    `json:"sourceId"`
}
