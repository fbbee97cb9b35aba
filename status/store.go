// Package status keeps the per day adherence record of every dose slot.
package status

import (
	"errors"
	"fmt"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// DateLayout of daily record keys
const DateLayout = "2006-01-02"

var (
	// ErrPersistence occurs when the backing store fails a read or write
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidStatus occurs when a status is not pending, taken or missed
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidDate occurs when a date is not YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date")
)

// PersistenceError wraps a backend failure so it matches ErrPersistence
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

// Unwrap the backend error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is ErrPersistence
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Backend persists daily status records
type Backend interface {
	DailyStatus(idUser uuid.UUID, date string) (*db.DailyStatus, error)
	UpdateDailyStatus(idUser uuid.UUID, date string, update func(record *db.DailyStatus, exists bool) (bool, error)) error
}

// Store owns the daily status records and their rollover
type Store struct {
	backend Backend
}

// NewStore over the given backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// TodayKey is the record key for now's local calendar day
func TodayKey(now time.Time) string {
	return now.Format(DateLayout)
}

// Slot is one dose of one medication within a day
type Slot struct {
	MedicationID uuid.UUID
	Time         schedule.TimeOfDay
}

// Slots expands every medication's schedule into dose slots. Medications whose
// schedule cannot be expanded contribute nothing.
func Slots(medications []*db.Medication) []Slot {
	var slots []Slot
	for _, medication := range medications {
		times, err := medication.Schedule.Expand()
		if err != nil {
			glog.Warningf("skipping medication %s with unusable schedule: %v", medication.ID, err)
			continue
		}

		for _, t := range times {
			slots = append(slots, Slot{MedicationID: medication.ID, Time: t})
		}
	}

	return slots
}

// EnsureTodayRecord creates today's record with every active slot pending, or
// adds pending entries for slots introduced since it was created. Existing
// entries are never overwritten. It returns the number of entries added.
func (s *Store) EnsureTodayRecord(idUser uuid.UUID, activeMedications []*db.Medication, now time.Time) (int, error) {
	date := TodayKey(now)
	slots := Slots(db.FilterActive(activeMedications, now))

	added := 0
	err := s.backend.UpdateDailyStatus(idUser, date, func(record *db.DailyStatus, exists bool) (bool, error) {
		added = 0
		for _, slot := range slots {
			if record.SetIfAbsent(slot.MedicationID, slot.Time.String(), db.StatusPending) {
				added++
			}
		}

		return !exists || added > 0, nil
	})
	if err != nil {
		return 0, &PersistenceError{Op: fmt.Sprintf("ensure record for user %s on %s", idUser, date), Err: err}
	}

	if added > 0 {
		glog.Infof("added %d pending dose slots for user %s on %s", added, idUser, date)
	}

	return added, nil
}

// SetStatus overwrites a slot in today's record
func (s *Store) SetStatus(idUser, medicationID uuid.UUID, at string, status db.Status, now time.Time) error {
	return s.SetStatusOn(idUser, TodayKey(now), medicationID, at, status)
}

// SetStatusOn overwrites a slot in the record for date. This is the only path
// that rewrites a day which has already ended.
func (s *Store) SetStatusOn(idUser uuid.UUID, date string, medicationID uuid.UUID, at string, status db.Status) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
	}

	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("date %q: %w", date, ErrInvalidDate)
	}

	t, err := schedule.ParseTimeOfDay(at)
	if err != nil {
		return err
	}

	err = s.backend.UpdateDailyStatus(idUser, date, func(record *db.DailyStatus, _ bool) (bool, error) {
		record.Set(medicationID, t.String(), status)
		return true, nil
	})
	if err != nil {
		return &PersistenceError{Op: fmt.Sprintf("set status of %s at %s on %s", medicationID, t, date), Err: err}
	}

	return nil
}

// GetStatus of a slot today. Missing entries read as pending; on a read
// failure the slot also reads as pending and ErrPersistence is returned.
func (s *Store) GetStatus(idUser, medicationID uuid.UUID, at string, now time.Time) (db.Status, error) {
	t, err := schedule.ParseTimeOfDay(at)
	if err != nil {
		return db.StatusPending, err
	}

	day, err := s.Today(idUser, now)

	return day.Status(medicationID, t), err
}

// Today's record as a read snapshot
func (s *Store) Today(idUser uuid.UUID, now time.Time) (*Day, error) {
	return s.OnDate(idUser, TodayKey(now))
}

// OnDate returns the record for date as a read snapshot. A day without a
// record is empty. On a read failure the empty day is returned together with
// ErrPersistence so callers can keep rendering.
func (s *Store) OnDate(idUser uuid.UUID, date string) (*Day, error) {
	record, err := s.backend.DailyStatus(idUser, date)
	if errors.Is(err, db.ErrNotFound) {
		return &Day{Date: date}, nil
	}

	if err != nil {
		return &Day{Date: date}, &PersistenceError{Op: fmt.Sprintf("read record for user %s on %s", idUser, date), Err: err}
	}

	return &Day{Date: date, record: record}, nil
}

// Day is a read only view of one day's record
type Day struct {
	Date   string
	record *db.DailyStatus
}

// Lookup the stored status of a slot, false when it has no entry
func (d *Day) Lookup(medicationID uuid.UUID, at schedule.TimeOfDay) (db.Status, bool) {
	if d == nil {
		return "", false
	}

	return d.record.Lookup(medicationID, at.String())
}

// Status of a slot, pending when it has no entry
func (d *Day) Status(medicationID uuid.UUID, at schedule.TimeOfDay) db.Status {
	if status, ok := d.Lookup(medicationID, at); ok {
		return status
	}

	return db.StatusPending
}

// Len is the number of stored entries
func (d *Day) Len() int {
	if d == nil || d.record == nil {
		return 0
	}

	return len(d.record.Entries)
}
