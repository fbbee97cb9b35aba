// Package schedule expands dosing rules into the daily trigger times that
// reminders are scheduled at.
package schedule

import (
	"fmt"
	"sort"
)

const (
	// MaxDosesPerDay for an interval schedule
	MaxDosesPerDay = 24
	// MaxHoursBetweenDoses for an interval schedule
	MaxHoursBetweenDoses = 24
	// MaxFixedTimes for a fixed times schedule
	MaxFixedTimes = 6
)

// Interval doses start at a time of day and repeat every few hours
type Interval struct {
	Start             TimeOfDay `json:"start_time"`
	DosesPerDay       int       `json:"doses_per_day"`
	HoursBetweenDoses int       `json:"hours_between_doses"`
}

// NewInterval validates and builds an interval schedule
func NewInterval(start string, dosesPerDay, hoursBetweenDoses int) (*Interval, error) {
	startTime, err := ParseTimeOfDay(start)
	if err != nil {
		return nil, err
	}

	i := &Interval{
		Start:             startTime,
		DosesPerDay:       dosesPerDay,
		HoursBetweenDoses: hoursBetweenDoses,
	}

	err = i.Validate()
	if err != nil {
		return nil, err
	}

	return i, nil
}

// Validate the interval bounds and that the last dose stays on the same day
func (i *Interval) Validate() error {
	if i.DosesPerDay < 1 || i.DosesPerDay > MaxDosesPerDay {
		return fmt.Errorf("doses per day must be between 1 and %d, got %d: %w", MaxDosesPerDay, i.DosesPerDay, ErrInvalidSchedule)
	}

	if i.HoursBetweenDoses < 1 || i.HoursBetweenDoses > MaxHoursBetweenDoses {
		return fmt.Errorf("hours between doses must be between 1 and %d, got %d: %w", MaxHoursBetweenDoses, i.HoursBetweenDoses, ErrInvalidSchedule)
	}

	last := i.Start.Minutes() + (i.DosesPerDay-1)*i.HoursBetweenDoses*60
	if last >= minutesPerDay {
		return fmt.Errorf(
			"%d doses %d hours apart starting at %s end past midnight: %w",
			i.DosesPerDay,
			i.HoursBetweenDoses,
			i.Start,
			ErrInvalidSchedule,
		)
	}

	return nil
}

// Expand the interval into its trigger times for one day
func (i *Interval) Expand() ([]TimeOfDay, error) {
	// stored records may not have gone through NewInterval
	err := i.Validate()
	if err != nil {
		return nil, err
	}

	start := i.Start.Minutes()
	times := make([]TimeOfDay, 0, i.DosesPerDay)
	for dose := 0; dose < i.DosesPerDay; dose++ {
		times = append(times, fromMinutes(start+dose*i.HoursBetweenDoses*60))
	}

	if last := times[len(times)-1]; len(times) > 1 && last.Minutes() <= start {
		return nil, fmt.Errorf("interval starting at %s wraps to %s: %w", i.Start, last, ErrInvalidSchedule)
	}

	return times, nil
}

// Frequency label for display
func (i *Interval) Frequency() string {
	if i.DosesPerDay == 1 {
		return "Once daily"
	}

	return fmt.Sprintf("Every %d hours", i.HoursBetweenDoses)
}

// FixedTimes doses happen at an explicit list of times
type FixedTimes struct {
	Times []TimeOfDay `json:"times"`
}

// NewFixedTimes validates and builds a fixed times schedule
func NewFixedTimes(times ...string) (*FixedTimes, error) {
	f := &FixedTimes{Times: make([]TimeOfDay, 0, len(times))}
	for _, raw := range times {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			return nil, err
		}

		f.Times = append(f.Times, t)
	}

	err := f.Validate()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Validate the number of times
func (f *FixedTimes) Validate() error {
	if len(f.Times) < 1 || len(f.Times) > MaxFixedTimes {
		return fmt.Errorf("fixed times schedule needs between 1 and %d times, got %d: %w", MaxFixedTimes, len(f.Times), ErrInvalidSchedule)
	}

	return nil
}

// Expand returns the times sorted ascending without duplicates
func (f *FixedTimes) Expand() ([]TimeOfDay, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	times := make([]TimeOfDay, len(f.Times))
	copy(times, f.Times)
	sort.Slice(times, func(a, b int) bool {
		return times[a].Before(times[b])
	})

	deduped := times[:1]
	for _, t := range times[1:] {
		if t != deduped[len(deduped)-1] {
			deduped = append(deduped, t)
		}
	}

	return deduped, nil
}

// Frequency label for display
func (f *FixedTimes) Frequency() string {
	n := len(f.Times)
	if times, err := f.Expand(); err == nil {
		n = len(times)
	}

	switch n {
	case 1:
		return "Once daily"
	case 2:
		return "Twice daily"
	default:
		return fmt.Sprintf("%d times daily", n)
	}
}

// Descriptor is the stored form of a schedule, exactly one variant is set
type Descriptor struct {
	Interval   *Interval   `json:"interval,omitempty"`
	FixedTimes *FixedTimes `json:"fixed_times,omitempty"`
}

// Validate that exactly one variant is set and that it is valid
func (d Descriptor) Validate() error {
	switch {
	case d.Interval != nil && d.FixedTimes != nil:
		return fmt.Errorf("schedule has both interval and fixed times set: %w", ErrInvalidSchedule)
	case d.Interval != nil:
		return d.Interval.Validate()
	case d.FixedTimes != nil:
		return d.FixedTimes.Validate()
	default:
		return fmt.Errorf("schedule has no variant set: %w", ErrInvalidSchedule)
	}
}

// Expand the schedule into its sorted trigger times for one day
func (d Descriptor) Expand() ([]TimeOfDay, error) {
	switch {
	case d.Interval != nil && d.FixedTimes == nil:
		return d.Interval.Expand()
	case d.FixedTimes != nil && d.Interval == nil:
		return d.FixedTimes.Expand()
	default:
		return nil, d.Validate()
	}
}

// Frequency label for display
func (d Descriptor) Frequency() string {
	switch {
	case d.Interval != nil:
		return d.Interval.Frequency()
	case d.FixedTimes != nil:
		return d.FixedTimes.Frequency()
	default:
		return ""
	}
}

// Expand is a convenience wrapper returning "HH:MM" strings
func Expand(d Descriptor) ([]string, error) {
	times, err := d.Expand()
	if err != nil {
		return nil, err
	}

	return Strings(times), nil
}

// Strings formats times as "HH:MM"
func Strings(times []TimeOfDay) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.String()
	}

	return out
}
