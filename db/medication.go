package db

import (
	"time"

	"git.0xdad.com/tblyler/meditime/schedule"
	"github.com/google/uuid"
)

// Duration of a course of medication
type Duration struct {
	Permanent bool `json:"permanent"`
	// Days the course lasts when not permanent
	Days int `json:"days,omitempty"`
}

// Medication information for a user
type Medication struct {
	IDUser             uuid.UUID           `json:"id_user"`
	ID                 uuid.UUID           `json:"id"`
	Name               string              `json:"name"`
	BrandName          string              `json:"brand_name,omitempty"`
	GenericName        string              `json:"generic_name,omitempty"`
	Dosage             string              `json:"dosage"`
	Schedule           schedule.Descriptor `json:"schedule"`
	Duration           Duration            `json:"duration"`
	IsActive           bool                `json:"is_active"`
	Streak             int                 `json:"streak"`
	RefillReminderDays *int                `json:"refill_reminder_days,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DisplayName prefers the brand name and mentions a distinct generic name
func (m *Medication) DisplayName() string {
	name := m.Name
	if m.BrandName != "" {
		name = m.BrandName
	}

	if m.GenericName != "" && m.GenericName != name {
		name += " (" + m.GenericName + ")"
	}

	return name
}

// ActiveOn reports whether the medication contributes doses on now's calendar day.
// A limited course covers Days calendar days starting with the day it was created.
func (m *Medication) ActiveOn(now time.Time) bool {
	if !m.IsActive {
		return false
	}

	if m.Duration.Permanent || m.Duration.Days <= 0 {
		return true
	}

	created := m.CreatedAt.In(now.Location())
	firstDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, now.Location())
	lastDay := firstDay.AddDate(0, 0, m.Duration.Days)

	return now.Before(lastDay)
}

// FilterActive returns the medications active on now's day, preserving order
func FilterActive(medications []*Medication, now time.Time) []*Medication {
	active := make([]*Medication, 0, len(medications))
	for _, medication := range medications {
		if medication.ActiveOn(now) {
			active = append(active, medication)
		}
	}

	return active
}

func (m *Medication) badgerKey() []byte {
	return badgerKeyForMedication(m.IDUser, m.ID)
}

func badgerKeyForMedication(idUser, id uuid.UUID) []byte {
	return append(badgerPrefixKeyForMedicationUserID(idUser), id[:]...)
}

func badgerPrefixKeyForMedicationUser(user *User) []byte {
	return badgerPrefixKeyForMedicationUserID(user.ID)
}

func badgerPrefixKeyForMedicationUserID(idUser uuid.UUID) []byte {
	return append([]byte("medication:"), idUser[:]...)
}
