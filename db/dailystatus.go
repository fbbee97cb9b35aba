package db

import (
	"time"

	"github.com/google/uuid"
)

// Status of a single dose on a single day
type Status string

const (
	StatusPending Status = "pending"
	StatusTaken   Status = "taken"
	StatusMissed  Status = "missed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusTaken, StatusMissed:
		return true
	}

	return false
}

// DailyStatus is the adherence record for one user on one calendar day
type DailyStatus struct {
	IDUser uuid.UUID `json:"id_user"`
	// Date is the local calendar day, YYYY-MM-DD
	Date      string            `json:"date"`
	Entries   map[string]Status `json:"entries"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SlotKey identifies one dose of one medication within a day
func SlotKey(medicationID uuid.UUID, at string) string {
	return medicationID.String() + "_" + at
}

// Lookup an entry, the bool is false when the slot has no entry yet
func (d *DailyStatus) Lookup(medicationID uuid.UUID, at string) (Status, bool) {
	if d == nil {
		return "", false
	}

	status, ok := d.Entries[SlotKey(medicationID, at)]

	return status, ok
}

// Set an entry, overwriting any existing one
func (d *DailyStatus) Set(medicationID uuid.UUID, at string, status Status) {
	if d.Entries == nil {
		d.Entries = map[string]Status{}
	}

	d.Entries[SlotKey(medicationID, at)] = status
}

// SetIfAbsent adds an entry only when the slot has none, reporting whether it did
func (d *DailyStatus) SetIfAbsent(medicationID uuid.UUID, at string, status Status) bool {
	if _, ok := d.Lookup(medicationID, at); ok {
		return false
	}

	d.Set(medicationID, at, status)

	return true
}

func badgerKeyForDailyStatus(idUser uuid.UUID, date string) []byte {
	return append(append([]byte("dailystatus:"), idUser[:]...), []byte(date)...)
}
