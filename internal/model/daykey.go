package model

import "time"

const dayKeyLayout = "2006-01-02"

// DayKey formats t as YYYY-MM-DD in t's own location.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// ParseDayKey parses a YYYY-MM-DD key as local midnight in loc.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dayKeyLayout, key, loc)
}

// IsDayKey reports whether s is a well-formed calendar day.
func IsDayKey(s string) bool {
	_, err := time.Parse(dayKeyLayout, s)
	return err == nil
}

// AddDays shifts a day key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := time.Parse(dayKeyLayout, key)
	if err != nil {
		return "", err
	}
	return DayKey(t.AddDate(0, 0, n)), nil
}

// BuildDateRange returns the day keys from center-past to center+future,
// inclusive and ascending.
func BuildDateRange(center time.Time, past, future int) []string {
	if past < 0 {
		past = 0
	}
	if future < 0 {
		future = 0
	}
	day := time.Date(center.Year(), center.Month(), center.Day(), 0, 0, 0, 0, center.Location())
	keys := make([]string, 0, past+future+1)
	for i := -past; i <= future; i++ {
		keys = append(keys, DayKey(day.AddDate(0, 0, i)))
	}
	return keys
}
