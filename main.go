package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/db"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

var foreground = flag.Bool("foreground", false, "start run delivering reminders in the foreground without pushing, SIGUSR1 toggles")

func errLog(messages ...interface{}) {
	fmt.Fprintln(os.Stderr, messages...)
}

func log(messages ...interface{}) {
	fmt.Println(messages...)
}

func help() {
	errLog(`usage: meditime [flags] <command> [subcommand]

commands:
  user add|get|list
  medication add|list|remove|pause|resume
  status show|set
  tap <link>
  run                 SIGHUP resyncs, SIGUSR1 toggles foreground delivery

environment:
  ` + config.BadgerPathEnv + `                 database directory (required)
  ` + config.PushoverAPITokenEnv + `          pushover application token (run only)
  ` + config.LocationEnv + `                 IANA time zone, defaults to local time
  ` + config.DayCheckIntervalEnv + ` how often run checks for a new day, defaults to 1m

variables are also read from .env in the working directory`)
}

// prompt for one line of input, failing when it is empty
func prompt(inputScanner *bufio.Scanner, label string) (string, error) {
	value, err := promptOptional(inputScanner, label)
	if err != nil {
		return "", err
	}

	if value == "" {
		return "", fmt.Errorf("no %s provided", label)
	}

	return value, nil
}

// promptOptional for one line of input that may be empty
func promptOptional(inputScanner *bufio.Scanner, label string) (string, error) {
	fmt.Print(label + ": ")
	if !inputScanner.Scan() {
		if err := inputScanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read %s from STDIN prompt: %w", label, err)
		}

		return "", nil
	}

	return string(bytes.TrimSpace(inputScanner.Bytes())), nil
}

func promptUser(inputScanner *bufio.Scanner, b *db.Badger) (*db.User, error) {
	username, err := prompt(inputScanner, "username")
	if err != nil {
		return nil, err
	}

	user, err := b.GetUser(username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("username %s doesn't exist", username)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lookup username %s: %w", username, err)
	}

	return user, nil
}

func userCommand(args []string, inputScanner *bufio.Scanner, b *db.Badger) error {
	if len(args) < 1 {
		return errors.New("must supply an argument to the user command")
	}

	switch args[0] {
	case "add":
		username, err := prompt(inputScanner, "username")
		if err != nil {
			return err
		}

		deviceToken, err := prompt(inputScanner, "pushover device token")
		if err != nil {
			return err
		}

		id := uuid.New()

		err = b.AddUser(&db.User{
			ID:   id,
			Name: username,
			PushoverDeviceTokens: map[string]string{
				db.DefaultDevice: deviceToken,
			},
			CreatedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to insert username %s: %w", username, err)
		}

		log("created user id", id)

	case "get":
		user, err := promptUser(inputScanner, b)
		if err != nil {
			return err
		}

		log(user)

	case "list":
		users, err := b.ListUsers()
		if err != nil {
			return err
		}

		for _, user := range users {
			log(user)
		}

	default:
		return fmt.Errorf("unknown user command %s", args[0])
	}

	return nil
}

func main() {
	flag.Usage = help
	flag.Parse()
	defer glog.Flush()

	args := flag.Args()
	if len(args) < 1 {
		help()
		errLog("must supply at least one argument")
		glog.Flush()
		os.Exit(1)
	}

	err := func() error {
		err := config.LoadDotEnv()
		if err != nil {
			return err
		}

		inputScanner := bufio.NewScanner(os.Stdin)
		config := &config.Env{}

		if args[0] == "tap" {
			return tapCommand(args[1:], inputScanner, config)
		}

		badgerPath, err := config.BadgerPath()
		if err != nil {
			return err
		}

		b, err := db.NewBadger(badgerPath)
		if err != nil {
			return err
		}

		defer b.Close()

		switch args[0] {
		case "run":
			return runCommand(config, b, *foreground)

		case "user":
			return userCommand(args[1:], inputScanner, b)

		case "medication":
			return medicationCommand(args[1:], inputScanner, config, b)

		case "status":
			return statusCommand(args[1:], inputScanner, config, b)

		default:
			help()
			return fmt.Errorf("unknown command %s", args[0])
		}
	}()

	if err != nil {
		errLog(err.Error())
		glog.Flush()
		os.Exit(1)
	}
}
