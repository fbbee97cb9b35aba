package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/notify"
)

// openLink hands a reminder link to the reminder stack the way a tap does and
// prints the doses it points at
func openLink(ctx context.Context, out io.Writer, link string, location *time.Location) error {
	transport, _ := newReminderStack(nil, nil, location, "tap", func(intent notify.Intent) {
		fmt.Fprintln(out, "time", intent.Time)
		fmt.Fprintln(out, "medications", strings.Join(intent.MedicationIDs, ", "))
	})

	_, err := transport.Open(ctx, link)

	return err
}

// tapCommand resolves a reminder link into the doses it points at
func tapCommand(args []string, inputScanner *bufio.Scanner, conf config.Config) error {
	var link string
	if len(args) > 0 {
		link = args[0]
	} else {
		var err error
		link, err = prompt(inputScanner, "reminder link")
		if err != nil {
			return err
		}
	}

	location, err := conf.Location()
	if err != nil {
		return err
	}

	return openLink(context.Background(), os.Stdout, link, location)
}
