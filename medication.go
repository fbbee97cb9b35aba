package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.0xdad.com/tblyler/meditime/adherence"
	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"git.0xdad.com/tblyler/meditime/status"
	"github.com/google/uuid"
)

func promptInt(inputScanner *bufio.Scanner, label string, optional bool) (int, error) {
	raw, err := promptOptional(inputScanner, label)
	if err != nil {
		return 0, err
	}

	if raw == "" {
		if optional {
			return 0, nil
		}

		return 0, fmt.Errorf("no %s provided", label)
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a whole number, got %q", label, raw)
	}

	return n, nil
}

func promptSchedule(inputScanner *bufio.Scanner) (schedule.Descriptor, error) {
	kind, err := prompt(inputScanner, "schedule type (interval or fixed)")
	if err != nil {
		return schedule.Descriptor{}, err
	}

	switch strings.ToLower(kind) {
	case "interval":
		start, err := prompt(inputScanner, "first dose time (HH:MM)")
		if err != nil {
			return schedule.Descriptor{}, err
		}

		doses, err := promptInt(inputScanner, "doses per day", false)
		if err != nil {
			return schedule.Descriptor{}, err
		}

		hours := schedule.MaxHoursBetweenDoses
		if doses > 1 {
			hours, err = promptInt(inputScanner, "hours between doses", false)
			if err != nil {
				return schedule.Descriptor{}, err
			}
		}

		interval, err := schedule.NewInterval(start, doses, hours)
		if err != nil {
			return schedule.Descriptor{}, err
		}

		return schedule.Descriptor{Interval: interval}, nil

	case "fixed":
		raw, err := prompt(inputScanner, "times (HH:MM, comma separated)")
		if err != nil {
			return schedule.Descriptor{}, err
		}

		var times []string
		for _, t := range strings.Split(raw, ",") {
			times = append(times, strings.TrimSpace(t))
		}

		fixed, err := schedule.NewFixedTimes(times...)
		if err != nil {
			return schedule.Descriptor{}, err
		}

		return schedule.Descriptor{FixedTimes: fixed}, nil
	}

	return schedule.Descriptor{}, fmt.Errorf("unknown schedule type %s", kind)
}

func promptMedication(inputScanner *bufio.Scanner, b *db.Badger) (*db.User, *db.Medication, error) {
	user, err := promptUser(inputScanner, b)
	if err != nil {
		return nil, nil, err
	}

	raw, err := prompt(inputScanner, "medication id")
	if err != nil {
		return nil, nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid medication id %s: %w", raw, err)
	}

	medication, err := b.GetMedication(user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("medication %s doesn't exist for user %s", id, user.Name)
	}

	if err != nil {
		return nil, nil, err
	}

	return user, medication, nil
}

func describeMedication(medication *db.Medication, now time.Time) string {
	state := "active"
	if !medication.IsActive {
		state = "paused"
	} else if !medication.ActiveOn(now) {
		state = "finished"
	}

	course := "ongoing"
	if !medication.Duration.Permanent && medication.Duration.Days > 0 {
		course = fmt.Sprintf("%d days from %s", medication.Duration.Days, medication.CreatedAt.In(now.Location()).Format(status.DateLayout))
	}

	times, err := schedule.Expand(medication.Schedule)
	if err != nil {
		times = []string{"invalid schedule: " + err.Error()}
	}

	return fmt.Sprintf(
		"%s  %s %s  %s at %s  %s, %s, streak %d",
		medication.ID,
		medication.DisplayName(),
		medication.Dosage,
		medication.Schedule.Frequency(),
		strings.Join(times, ", "),
		course,
		state,
		adherence.StreakFor(medication),
	)
}

func medicationCommand(args []string, inputScanner *bufio.Scanner, conf config.Config, b *db.Badger) error {
	if len(args) < 1 {
		return errors.New("must supply an argument to the medication command")
	}

	location, err := conf.Location()
	if err != nil {
		return err
	}

	now := time.Now().In(location)

	switch args[0] {
	case "add":
		user, err := promptUser(inputScanner, b)
		if err != nil {
			return err
		}

		name, err := prompt(inputScanner, "name")
		if err != nil {
			return err
		}

		brandName, err := promptOptional(inputScanner, "brand name (optional)")
		if err != nil {
			return err
		}

		genericName, err := promptOptional(inputScanner, "generic name (optional)")
		if err != nil {
			return err
		}

		dosage, err := prompt(inputScanner, "dosage")
		if err != nil {
			return err
		}

		descriptor, err := promptSchedule(inputScanner)
		if err != nil {
			return err
		}

		days, err := promptInt(inputScanner, "course length in days (blank for ongoing)", true)
		if err != nil {
			return err
		}

		refill, err := promptOptional(inputScanner, "refill reminder days (optional)")
		if err != nil {
			return err
		}

		medication := &db.Medication{
			IDUser:      user.ID,
			ID:          uuid.New(),
			Name:        name,
			BrandName:   brandName,
			GenericName: genericName,
			Dosage:      dosage,
			Schedule:    descriptor,
			Duration:    db.Duration{Permanent: days == 0, Days: days},
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if refill != "" {
			refillDays, err := strconv.Atoi(refill)
			if err != nil || refillDays < 0 {
				return fmt.Errorf("refill reminder days must be a whole number, got %q", refill)
			}

			medication.RefillReminderDays = &refillDays
		}

		err = b.AddMedication(medication)
		if err != nil {
			return err
		}

		log(describeMedication(medication, now))

	case "list":
		user, err := promptUser(inputScanner, b)
		if err != nil {
			return err
		}

		medications, err := b.ListMedicationsForUser(user)
		if err != nil {
			return err
		}

		for _, medication := range medications {
			log(describeMedication(medication, now))
		}

	case "remove":
		_, medication, err := promptMedication(inputScanner, b)
		if err != nil {
			return err
		}

		err = b.RemoveMedication(medication)
		if err != nil {
			return err
		}

		log("removed medication", medication.ID)

	case "pause", "resume":
		user, medication, err := promptMedication(inputScanner, b)
		if err != nil {
			return err
		}

		active := args[0] == "resume"
		medication, err = b.UpdateMedication(user.ID, medication.ID, func(m *db.Medication) error {
			m.IsActive = active
			return nil
		})
		if err != nil {
			return err
		}

		log(describeMedication(medication, now))

	default:
		return fmt.Errorf("unknown medication command %s", args[0])
	}

	return nil
}
