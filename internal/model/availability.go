package model

import (
	"fmt"
	"strings"
	"time"
)

// Layouts used to store and exchange calendar values. All of them are
// timezone-naive: a slot is a wall clock position in the clinic's calendar.
const (
	DateLayout      = "2006-01-02"
	HourLayout      = "15:04:05"
	ShortHourLayout = "15:04"
	DateTimeLayout  = "2006-01-02 15:04:05"
)

// Slot mirrors a row of the availability table. A slot is bookable while
// Available is true.
type Slot struct {
	Date      string    `json:"date"`       // availability.date (YYYY-MM-DD)
	Hour      string    `json:"hour"`       // availability.hour (HH:MM:SS)
	Available bool      `json:"available"`  // availability.available
	UpdatedAt time.Time `json:"updated_at"` // availability.updated_at
}

// Key returns the slot identity.
func (s Slot) Key() SlotKey { return SlotKey{Date: s.Date, Hour: s.Hour} }

// SlotKey identifies a slot by its date and hour columns.
type SlotKey struct {
	Date string `json:"date"`
	Hour string `json:"hour"`
}

// SlotOf derives the slot for a wall clock instant. The location of t is
// ignored; only its calendar fields are used.
func SlotOf(t time.Time) SlotKey {
	return SlotKey{Date: t.Format(DateLayout), Hour: t.Format(HourLayout)}
}

// ParseSlot validates a date ("2006-01-02") and an hour ("15:04" or
// "15:04:05") and returns the canonical key.
func ParseSlot(date, hour string) (SlotKey, error) {
	date = strings.TrimSpace(date)
	hour = strings.TrimSpace(hour)
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid date %q", date)
	}
	layout := HourLayout
	if len(hour) == len(ShortHourLayout) {
		layout = ShortHourLayout
	}
	h, err := time.Parse(layout, hour)
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid hour %q", hour)
	}
	return SlotKey{Date: d.Format(DateLayout), Hour: h.Format(HourLayout)}, nil
}

// Time combines date and hour into a timezone-naive instant (UTC location).
func (k SlotKey) Time() (time.Time, error) {
	return time.Parse(DateTimeLayout, k.Date+" "+k.Hour)
}

// ShortHour returns the hour trimmed to HH:MM.
func (k SlotKey) ShortHour() string { return ShortHour(k.Hour) }

// OnGrid reports whether the hour starts on a multiple of minutes.
func (k SlotKey) OnGrid(minutes int) bool {
	t, err := k.Time()
	if err != nil || minutes <= 0 {
		return false
	}
	if t.Second() != 0 {
		return false
	}
	return (t.Hour()*60+t.Minute())%minutes == 0
}

func (k SlotKey) String() string { return k.Date + " " + k.Hour }

// ShortHour trims an HH:MM:SS value to HH:MM. Shorter values are returned
// unchanged.
func ShortHour(hour string) string {
	if len(hour) >= len(ShortHourLayout) {
		return hour[:len(ShortHourLayout)]
	}
	return hour
}
