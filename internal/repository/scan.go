package repository

import (
	"fmt"
	"strings"
	"time"
)

// dbTime decodes DATETIME columns. The MySQL driver hands back time.Time
// (parseTime=true) while SQLite may return text; both are read as a
// timezone-naive wall clock in the UTC location.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = wallClock(x), true
		return nil
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	default:
		return fmt.Errorf("repository: cannot scan %T into time", v)
	}
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range dbTimeLayouts {
		if p, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = wallClock(p), true
			return nil
		}
	}
	return fmt.Errorf("repository: unrecognised time %q", s)
}

// wallClock drops the location and sub-second part of t.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// formatTime renders t the way DATETIME columns are written.
func formatTime(t time.Time) string { return t.Format("2006-01-02 15:04:05") }

// nowUTC is the clock used for created_at/updated_at columns.
var nowUTC = func() time.Time { return time.Now().UTC() }
