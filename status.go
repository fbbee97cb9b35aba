package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"git.0xdad.com/tblyler/meditime/adherence"
	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/lifecycle"
	"git.0xdad.com/tblyler/meditime/schedule"
	"git.0xdad.com/tblyler/meditime/status"
)

var (
	errFutureDate = errors.New("date is in the future")
)

func printSummary(out io.Writer, summary *adherence.Summary) {
	fmt.Fprintln(out, "date", summary.Date)
	fmt.Fprintf(out, "taken %d of %d\n", summary.Progress.Taken, summary.Progress.Total)

	switch {
	case summary.Next == nil:
		fmt.Fprintln(out, "next: nothing scheduled")
	case summary.Next.Tomorrow:
		fmt.Fprintln(out, "next: tomorrow", summary.Next.Time, summary.Next.Medication.DisplayName())
	default:
		fmt.Fprintln(out, "next:", summary.Next.Time, summary.Next.Medication.DisplayName())
	}

	for _, row := range summary.Rows {
		state := string(row.Status)
		if row.Overdue {
			state += " (overdue)"
		}

		options := make([]string, len(row.Options))
		for i, option := range row.Options {
			options[i] = string(option)
		}

		fmt.Fprintf(
			out,
			"%s  %s  %s %s  %s  [%s]\n",
			row.Time,
			row.Medication.ID,
			row.Medication.DisplayName(),
			row.Medication.Dosage,
			state,
			strings.Join(options, "|"),
		)
	}
}

// showStatus prepares today's record and prints the summary. When the status
// record can not be read or written every dose is shown as pending.
func showStatus(ctx context.Context, out, errOut io.Writer, coordinator *lifecycle.Coordinator) error {
	err := coordinator.OnDayBoundaryOrAppForeground(ctx)
	if err != nil {
		if !errors.Is(err, status.ErrPersistence) {
			return err
		}

		fmt.Fprintln(errOut, "warning:", err)
	}

	summary, err := coordinator.Summary(ctx)
	if summary == nil {
		return err
	}

	if err != nil {
		if !errors.Is(err, status.ErrPersistence) {
			return err
		}

		fmt.Fprintln(errOut, "warning: showing every dose as pending:", err)
	}

	printSummary(out, summary)

	return nil
}

// statusDate resolves the date a manual status edit applies to, today when
// raw is empty. Days after today can not be edited.
func statusDate(raw string, now time.Time) (string, error) {
	today := status.TodayKey(now)
	if raw == "" {
		return today, nil
	}

	_, err := time.ParseInLocation(status.DateLayout, raw, now.Location())
	if err != nil {
		return "", fmt.Errorf("date %q must be YYYY-MM-DD: %w", raw, status.ErrInvalidDate)
	}

	if raw > today {
		return "", fmt.Errorf("%s is after %s: %w", raw, today, errFutureDate)
	}

	return raw, nil
}

func statusCommand(args []string, inputScanner *bufio.Scanner, conf config.Config, b *db.Badger) error {
	if len(args) < 1 {
		return errors.New("must supply an argument to the status command")
	}

	location, err := conf.Location()
	if err != nil {
		return err
	}

	now := time.Now().In(location)
	store := status.NewStore(b)

	switch args[0] {
	case "show":
		user, err := promptUser(inputScanner, b)
		if err != nil {
			return err
		}

		coordinator := lifecycle.New(lifecycle.Config{
			Repository: b,
			Store:      store,
			Now: func() time.Time {
				return now
			},
		})
		coordinator.Login(user.ID)

		return showStatus(context.Background(), os.Stdout, os.Stderr, coordinator)

	case "set":
		user, medication, err := promptMedication(inputScanner, b)
		if err != nil {
			return err
		}

		at, err := prompt(inputScanner, "dose time (HH:MM)")
		if err != nil {
			return err
		}

		t, err := schedule.ParseTimeOfDay(at)
		if err != nil {
			return err
		}

		times, err := medication.Schedule.Expand()
		if err != nil {
			return err
		}

		scheduled := false
		for _, candidate := range times {
			scheduled = scheduled || candidate == t
		}

		if !scheduled {
			return fmt.Errorf("%s is not scheduled at %s", medication.DisplayName(), t)
		}

		raw, err := promptOptional(inputScanner, "date (YYYY-MM-DD, blank for today)")
		if err != nil {
			return err
		}

		date, err := statusDate(raw, now)
		if err != nil {
			return err
		}

		choice, err := prompt(inputScanner, "status (pending, taken or missed)")
		if err != nil {
			return err
		}

		s := db.Status(strings.ToLower(choice))

		if date == status.TodayKey(now) {
			err = adherence.CheckChoice(t, s, now)
			if err != nil {
				return err
			}

			err = store.SetStatus(user.ID, medication.ID, t.String(), s, now)
		} else {
			err = store.SetStatusOn(user.ID, date, medication.ID, t.String(), s)
		}

		if err != nil {
			return err
		}

		log("marked", medication.DisplayName(), "at", t, "on", date, "as", s)

	default:
		return fmt.Errorf("unknown status command %s", args[0])
	}

	return nil
}
