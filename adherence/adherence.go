// Package adherence derives what to show about today's doses: the next one due,
// progress through the day and streaks.
package adherence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"git.0xdad.com/tblyler/meditime/status"
	"github.com/golang/glog"
)

var (
	// ErrStatusNotOffered occurs when a status is chosen that the dose's time does not allow
	ErrStatusNotOffered = errors.New("status not offered for this dose")
)

// Dose is one medication due at one time of day
type Dose struct {
	Medication *db.Medication
	Time       schedule.TimeOfDay
}

// Upcoming is the next dose to take
type Upcoming struct {
	Dose
	// Tomorrow is set when nothing is left today and the dose is tomorrow's first
	Tomorrow bool
}

// Progress through today's doses
type Progress struct {
	Taken int
	Total int
}

// Row describes one dose for display
type Row struct {
	Dose
	Status db.Status
	// Overdue is an advisory flag for a pending dose whose time has passed, the
	// stored status is not changed
	Overdue bool
	Options []db.Status
}

// Summary of today for display
type Summary struct {
	Date     string
	Next     *Upcoming
	Progress Progress
	Rows     []Row
}

// doses of every medication active on now's day, ordered by time and then input order
func doses(medications []*db.Medication, now time.Time) []Dose {
	var out []Dose
	for _, medication := range db.FilterActive(medications, now) {
		times, err := medication.Schedule.Expand()
		if err != nil {
			glog.Warningf("ignoring medication %s with unusable schedule: %v", medication.ID, err)
			continue
		}

		for _, t := range times {
			out = append(out, Dose{Medication: medication, Time: t})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Time.Before(out[b].Time)
	})

	return out
}

// NextUpcoming returns the earliest pending dose at or after now. When none is
// left today it previews tomorrow's first dose. It returns nil when there are
// no active medications.
func NextUpcoming(medications []*db.Medication, day *status.Day, now time.Time) *Upcoming {
	all := doses(medications, now)
	if len(all) == 0 {
		return nil
	}

	for _, dose := range all {
		if day.Status(dose.Medication.ID, dose.Time) != db.StatusPending {
			continue
		}

		if schedule.IsPast(dose.Time, now) {
			continue
		}

		return &Upcoming{Dose: dose}
	}

	tomorrow := doses(medications, now.AddDate(0, 0, 1))
	if len(tomorrow) == 0 {
		return nil
	}

	return &Upcoming{Dose: tomorrow[0], Tomorrow: true}
}

// TodayProgress counts today's doses and how many of them were taken. Only
// doses of currently active medications count.
func TodayProgress(medications []*db.Medication, day *status.Day, now time.Time) Progress {
	var progress Progress
	for _, dose := range doses(medications, now) {
		progress.Total++
		if day.Status(dose.Medication.ID, dose.Time) == db.StatusTaken {
			progress.Taken++
		}
	}

	return progress
}

// StreakFor the medication as stored. Streaks are only ever read here.
func StreakFor(medication *db.Medication) int {
	if medication.Streak < 0 {
		return 0
	}

	return medication.Streak
}

// StatusOptions a dose at t can be set to: a dose still to come can be pending
// or taken, a dose whose time has passed can be taken or missed.
func StatusOptions(t schedule.TimeOfDay, now time.Time) []db.Status {
	if schedule.Classify(t, now) == schedule.Past {
		return []db.Status{db.StatusTaken, db.StatusMissed}
	}

	return []db.Status{db.StatusPending, db.StatusTaken}
}

// CheckChoice fails with ErrStatusNotOffered when s is not among StatusOptions
func CheckChoice(t schedule.TimeOfDay, s db.Status, now time.Time) error {
	options := StatusOptions(t, now)
	for _, option := range options {
		if option == s {
			return nil
		}
	}

	return fmt.Errorf("%s dose at %s can be %v, not %s: %w", schedule.Classify(t, now), t, options, s, ErrStatusNotOffered)
}

// EligibleForMissed reports whether a dose would be shown as overdue
func EligibleForMissed(s db.Status, t schedule.TimeOfDay, now time.Time) bool {
	return s == db.StatusPending && schedule.IsPast(t, now)
}

// Summarize today for display
func Summarize(medications []*db.Medication, day *status.Day, now time.Time) *Summary {
	summary := &Summary{
		Date:     status.TodayKey(now),
		Next:     NextUpcoming(medications, day, now),
		Progress: TodayProgress(medications, day, now),
	}

	for _, dose := range doses(medications, now) {
		s := day.Status(dose.Medication.ID, dose.Time)
		summary.Rows = append(summary.Rows, Row{
			Dose:    dose,
			Status:  s,
			Overdue: EligibleForMissed(s, dose.Time, now),
			Options: StatusOptions(dose.Time, now),
		})
	}

	return summary
}
