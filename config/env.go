package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	// BadgerPathEnv name
	BadgerPathEnv = "BADGER_PATH"
	// PushoverAPITokenEnv name
	PushoverAPITokenEnv = "PUSHOVER_API_TOKEN"
	// LocationEnv name, an IANA time zone such as America/Chicago
	LocationEnv = "MEDITIME_TZ"
	// DayCheckIntervalEnv name, a Go duration such as 30s
	DayCheckIntervalEnv = "MEDITIME_DAY_CHECK_INTERVAL"

	// DefaultDayCheckInterval when DayCheckIntervalEnv is not set
	DefaultDayCheckInterval = time.Minute
)

var (
	// ErrEnvVariableNotSet occurs when an environment variable is not set
	ErrEnvVariableNotSet = errors.New("environment variable is not set")
	// ErrEnvVariableInvalid occurs when an environment variable can not be parsed
	ErrEnvVariableInvalid = errors.New("environment variable is invalid")
)

// LoadDotEnv reads variables from the given files, or .env when none are
// given. Variables already in the environment win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		err = godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	return nil
}

// Env variable Config implementation
type Env struct {
}

// BadgerPath for the database directory
func (e *Env) BadgerPath() (string, error) {
	val, ok := os.LookupEnv(BadgerPathEnv)
	if !ok {
		return "", fmt.Errorf(
			"unable to get badger path from env variable %s: %w",
			BadgerPathEnv,
			ErrEnvVariableNotSet,
		)
	}

	return val, nil
}

// PushoverAPIToken getter
func (e *Env) PushoverAPIToken() (string, error) {
	val, ok := os.LookupEnv(PushoverAPITokenEnv)
	if !ok {
		return "", fmt.Errorf(
			"unable to get pushover API token from env variable %s: %w",
			PushoverAPITokenEnv,
			ErrEnvVariableNotSet,
		)
	}

	return val, nil
}

// Location reminders and days are evaluated in, time.Local when unset
func (e *Env) Location() (*time.Location, error) {
	val, ok := os.LookupEnv(LocationEnv)
	if !ok || val == "" {
		return time.Local, nil
	}

	location, err := time.LoadLocation(val)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to load time zone %q from env variable %s: %v: %w",
			val,
			LocationEnv,
			err,
			ErrEnvVariableInvalid,
		)
	}

	return location, nil
}

// DayCheckInterval between day rollover checks
func (e *Env) DayCheckInterval() (time.Duration, error) {
	val, ok := os.LookupEnv(DayCheckIntervalEnv)
	if !ok || val == "" {
		return DefaultDayCheckInterval, nil
	}

	interval, err := time.ParseDuration(val)
	if err != nil || interval <= 0 {
		return 0, fmt.Errorf(
			"unable to parse day check interval %q from env variable %s: %w",
			val,
			DayCheckIntervalEnv,
			ErrEnvVariableInvalid,
		)
	}

	return interval, nil
}
