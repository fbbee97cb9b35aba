package schedule

import (
	"errors"
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

var (
	// ErrInvalidTimeFormat occurs when a time of day is not a valid HH:MM string
	ErrInvalidTimeFormat = errors.New("invalid time format")
	// ErrInvalidSchedule occurs when schedule parameters are out of range or would cross midnight
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// TimeOfDay is a wall clock hour and minute with no date or location attached
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a strict "HH:MM" 24 hour string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("time %q is not HH:MM: %w", s, ErrInvalidTimeFormat)
	}

	hour, ok := twoDigits(s[0], s[1])
	if !ok || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("time %q has an invalid hour: %w", s, ErrInvalidTimeFormat)
	}

	minute, ok := twoDigits(s[3], s[4])
	if !ok || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time %q has an invalid minute: %w", s, ErrInvalidTimeFormat)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for constants, it panics on error
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}

	return t
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}

	return int(a-'0')*10 + int(b-'0'), true
}

// At returns the time of day of t in t's own location
func At(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func fromMinutes(m int) TimeOfDay {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}

	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// Minutes since midnight
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is earlier in the day than o
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// On returns the instant at t on the calendar day of day, in day's location
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Relation of a trigger time to the current minute
type Relation int

const (
	// Future includes the current minute
	Future Relation = iota
	// Past is strictly before the current minute
	Past
)

func (r Relation) String() string {
	if r == Past {
		return "past"
	}

	return "future"
}

// IsPast reports whether t is strictly before now's hour and minute, evaluated
// in now's location. The current minute itself is not past.
func IsPast(t TimeOfDay, now time.Time) bool {
	return t.Before(At(now))
}

// Classify t relative to now
func Classify(t TimeOfDay, now time.Time) Relation {
	if IsPast(t, now) {
		return Past
	}

	return Future
}
