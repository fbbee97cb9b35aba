package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"github.com/golang/glog"
)

// GroupMedication is one medication inside a notification group
type GroupMedication struct {
	ID          string
	DisplayName string
	Dosage      string
}

// Group bundles the medications that share a trigger time
type Group struct {
	Time        schedule.TimeOfDay
	Medications []GroupMedication
}

// BuildGroups returns one group per distinct trigger time across the
// medications active on now's day, ordered by time. Within a group
// medications keep their input order.
func BuildGroups(medications []*db.Medication, now time.Time) []Group {
	byTime := map[schedule.TimeOfDay]*Group{}
	for _, medication := range db.FilterActive(medications, now) {
		times, err := medication.Schedule.Expand()
		if err != nil {
			glog.Warningf("not scheduling medication %s: %v", medication.ID, err)
			continue
		}

		for _, t := range times {
			group, ok := byTime[t]
			if !ok {
				group = &Group{Time: t}
				byTime[t] = group
			}

			group.Medications = append(group.Medications, GroupMedication{
				ID:          medication.ID.String(),
				DisplayName: medication.DisplayName(),
				Dosage:      medication.Dosage,
			})
		}
	}

	groups := make([]Group, 0, len(byTime))
	for _, group := range byTime {
		groups = append(groups, *group)
	}

	sort.Slice(groups, func(a, b int) bool {
		return groups[a].Time.Before(groups[b].Time)
	})

	return groups
}

// Notification is what the transport delivers at a trigger time
type Notification struct {
	Title   string
	Body    string
	Payload Payload
}

// NewNotification for a group, singular when it holds one medication
func NewNotification(group Group) Notification {
	if len(group.Medications) == 1 {
		medication := group.Medications[0]

		return Notification{
			Title: "Medication Reminder",
			Body:  "Time to take " + describe(medication),
			Payload: Payload{
				Type:         TypeReminder,
				MedicationID: medication.ID,
				Time:         group.Time.String(),
			},
		}
	}

	described := make([]string, len(group.Medications))
	medications := make([]PayloadMedication, len(group.Medications))
	for i, medication := range group.Medications {
		described[i] = describe(medication)
		medications[i] = PayloadMedication{
			ID:     medication.ID,
			Name:   medication.DisplayName,
			Dosage: medication.Dosage,
		}
	}

	return Notification{
		Title: fmt.Sprintf("Time to take %d medications", len(group.Medications)),
		Body:  strings.Join(described, ", "),
		Payload: Payload{
			Type:        TypeReminderGroup,
			Time:        group.Time.String(),
			Medications: medications,
		},
	}
}

func describe(medication GroupMedication) string {
	if medication.Dosage == "" {
		return medication.DisplayName
	}

	return medication.DisplayName + " (" + medication.Dosage + ")"
}
