package config

import "time"

// Config for application setup
type Config interface {
	BadgerPath() (string, error)
	PushoverAPIToken() (string, error)
	Location() (*time.Location, error)
	DayCheckInterval() (time.Duration, error)
}
