package db

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDevice is the pushover device token name reminders go to when none is chosen
const DefaultDevice = "default"

// User information
type User struct {
	ID                   uuid.UUID         `json:"id"`
	Name                 string            `json:"name"`
	PushoverDeviceTokens map[string]string `json:"pushover_device_tokens"`
	NotifyDevice         string            `json:"notify_device,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// ReminderToken is the pushover token reminders for this user are sent to
func (u *User) ReminderToken() (string, bool) {
	device := u.NotifyDevice
	if device == "" {
		device = DefaultDevice
	}

	token, ok := u.PushoverDeviceTokens[device]

	return token, ok
}

func (u *User) badgerKey() []byte {
	return badgerKeyForUsername(u.Name)
}

func badgerKeyForUsername(username string) []byte {
	return append([]byte("user:"), []byte(username)...)
}
