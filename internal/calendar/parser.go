// Package calendar turns calendar feed text into day-bucketed events. The
// parser and normalizer never touch the network; only Ingestor fetches, and
// only through a FeedFetcher.
package calendar

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	ics "github.com/arran4/golang-ical"
)

// ParsedEvent is a VEVENT as read from the feed, before normalization.
type ParsedEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	Status  string
}

const untitled = "Untitled"

var errNotCalendar = errors.New("parse calendar: no VCALENDAR component")

var (
	propRecurrenceID = ics.ComponentProperty("RECURRENCE-ID")
	propDuration     = ics.ComponentProperty("DURATION")
)

// Parser reads feeds. Floating times and all-day dates are placed in
// Location; Now is the degraded start for an event without DTSTART.
type Parser struct {
	Location *time.Location
	Now      func() time.Time
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc, Now: time.Now}
}

// Parse extracts every VEVENT. Recurrence rules are not expanded: each
// VEVENT yields exactly one event.
func (p *Parser) Parse(text string) ([]ParsedEvent, error) {
	if !strings.Contains(strings.ToUpper(text), "BEGIN:VCALENDAR") {
		return nil, errNotCalendar
	}
	cal, err := ics.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, ev := range cal.Events() {
		events = append(events, p.parseEvent(ev))
	}
	return events, nil
}

func (p *Parser) parseEvent(ev *ics.VEvent) ParsedEvent {
	out := ParsedEvent{
		UID:     propValue(ev.GetProperty(ics.ComponentPropertyUniqueId)),
		Summary: propValue(ev.GetProperty(ics.ComponentPropertySummary)),
		Status:  propValue(ev.GetProperty(ics.ComponentPropertyStatus)),
	}
	if out.Summary == "" {
		out.Summary = untitled
	}

	startProp := ev.GetProperty(ics.ComponentPropertyDtStart)
	start, allDay, ok := p.parseDateTime(startProp)
	if !ok {
		// Degraded: keep the event, anchored at the current instant.
		start, allDay = p.Now(), false
	}
	out.Start, out.AllDay = start, allDay

	if end, _, ok := p.parseDateTime(ev.GetProperty(ics.ComponentPropertyDtEnd)); ok {
		out.End = end
	} else if d, ok := parseDuration(propValue(ev.GetProperty(propDuration))); ok {
		out.End = start.Add(d)
	} else if allDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}

	if out.UID == "" {
		out.UID = syntheticUID(out.Summary, propValue(startProp))
	}
	if rid := propValue(ev.GetProperty(propRecurrenceID)); rid != "" {
		out.UID = out.UID + "-" + rid
	}
	return out
}

// parseDateTime reads a DATE or DATE-TIME value. UTC ("Z"), TZID-qualified
// and floating forms are supported.
func (p *Parser) parseDateTime(prop *ics.IANAProperty) (time.Time, bool, bool) {
	value := propValue(prop)
	if value == "" {
		return time.Time{}, false, false
	}

	if strings.EqualFold(param(prop, "VALUE"), "DATE") || len(value) == 8 {
		t, err := time.ParseInLocation("20060102", value, p.Location)
		return t, true, err == nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err == nil
	}

	loc := p.Location
	if tzid := strings.Trim(param(prop, "TZID"), `"`); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err == nil
}

func propValue(prop *ics.IANAProperty) string {
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

// param looks a property parameter up case-insensitively.
func param(prop *ics.IANAProperty, name string) string {
	if prop == nil {
		return ""
	}
	for k, v := range prop.ICalParameters {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// syntheticUID keeps ids stable for feeds that omit UID.
func syntheticUID(summary, rawStart string) string {
	sum := sha1.Sum([]byte(summary + "\x00" + rawStart))
	return "nouid-" + hex.EncodeToString(sum[:8])
}

// parseDuration reads an RFC 5545 duration such as P1D, PT1H30M, -PT15M or P2W.
func parseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign, s = -1, s[1:]
	case '+':
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, false
	}
	s = s[1:]

	var (
		total  time.Duration
		num    int
		digits bool
		inTime bool
	)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits = true
			continue
		case r == 'T':
			if digits {
				return 0, false
			}
			inTime = true
			continue
		}
		if !digits {
			return 0, false
		}
		n := time.Duration(num)
		switch {
		case r == 'W' && !inTime:
			total += n * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			total += n * 24 * time.Hour
		case r == 'H' && inTime:
			total += n * time.Hour
		case r == 'M' && inTime:
			total += n * time.Minute
		case r == 'S' && inTime:
			total += n * time.Second
		default:
			return 0, false
		}
		num, digits = 0, false
	}
	if digits {
		return 0, false
	}
	return sign * total, true
}
