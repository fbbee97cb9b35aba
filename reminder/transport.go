// Package reminder delivers daily reminders through Pushover on a cron schedule.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"git.0xdad.com/tblyler/meditime/notify"
	"github.com/golang/glog"
	"github.com/gregdel/pushover"
	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownHandle occurs when cancelling a handle this transport did not issue
	ErrUnknownHandle = errors.New("unknown reminder handle")
	// ErrInvalidTime occurs when an hour or minute is out of range
	ErrInvalidTime = errors.New("invalid reminder time")
)

// Sender is the subset of the pushover client the transport uses
type Sender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
	GetRecipientDetails(recipient *pushover.Recipient) (*pushover.RecipientDetails, error)
}

// Transport schedules one cron entry per reminder and pushes it when it fires
type Transport struct {
	sender    Sender
	recipient *pushover.Recipient
	cron      *cron.Cron

	mu         sync.Mutex
	handler    notify.EventHandler
	entries    map[cron.EntryID]notify.Notification
	foreground bool
}

// New transport pushing to recipient, evaluating reminder times in location.
// A transport only used to Open links may have a nil sender and recipient.
func New(sender Sender, recipient *pushover.Recipient, location *time.Location) *Transport {
	if location == nil {
		location = time.Local
	}

	logger := cronLogger{}

	return &Transport{
		sender:    sender,
		recipient: recipient,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		entries: map[cron.EntryID]notify.Notification{},
	}
}

// SetHandler receives taps and foreground deliveries
func (t *Transport) SetHandler(handler notify.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// SetForeground switches deliveries between pushing and handing them to the
// handler's foreground receive without alerting
func (t *Transport) SetForeground(foreground bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.foreground = foreground
}

// Foreground reports whether deliveries currently skip the push
func (t *Transport) Foreground() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.foreground
}

// Start firing scheduled reminders
func (t *Transport) Start() {
	t.cron.Start()
}

// Stop firing reminders and wait for running deliveries to finish
func (t *Transport) Stop() {
	<-t.cron.Stop().Done()
}

// RequestPermission validates the recipient with Pushover. An unknown or
// disabled recipient is a denial, a failed request is an error.
func (t *Transport) RequestPermission(ctx context.Context) (bool, error) {
	details, err := t.sender.GetRecipientDetails(t.recipient)
	if err != nil {
		return false, fmt.Errorf("failed to validate pushover recipient: %w", err)
	}

	if details == nil || details.Status != 1 {
		glog.Warningf("pushover recipient rejected: %+v", details)
		return false, nil
	}

	return true, nil
}

// ScheduleDaily adds a reminder that fires every day at hour:minute
func (t *Transport) ScheduleDaily(ctx context.Context, hour, minute int, notification notify.Notification) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%02d:%02d: %w", hour, minute, ErrInvalidTime)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := t.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		err := t.deliver(context.Background(), notification)
		if err != nil {
			glog.Errorf("failed to deliver reminder for %s: %v", notification.Payload.Time, err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to add cron entry for %02d:%02d: %w", hour, minute, err)
	}

	t.entries[id] = notification

	return strconv.Itoa(int(id)), nil
}

// Cancel a scheduled reminder
func (t *Transport) Cancel(ctx context.Context, handle string) error {
	n, err := strconv.Atoi(handle)
	if err != nil {
		return fmt.Errorf("handle %q: %w", handle, ErrUnknownHandle)
	}

	id := cron.EntryID(n)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return fmt.Errorf("handle %q: %w", handle, ErrUnknownHandle)
	}

	t.cron.Remove(id)
	delete(t.entries, id)

	return nil
}

// CancelAll scheduled reminders
func (t *Transport) CancelAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.entries {
		t.cron.Remove(id)
	}

	t.entries = map[cron.EntryID]notify.Notification{}

	return nil
}

// ListScheduled handles in the order they were issued
func (t *Transport) ListScheduled(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, int(id))
	}

	sort.Ints(ids)

	handles := make([]string, len(ids))
	for i, id := range ids {
		handles[i] = strconv.Itoa(id)
	}

	return handles, nil
}

// Next fire time of a scheduled reminder
func (t *Transport) Next(handle string) (time.Time, bool) {
	n, err := strconv.Atoi(handle)
	if err != nil {
		return time.Time{}, false
	}

	entry := t.cron.Entry(cron.EntryID(n))
	if !entry.Valid() {
		return time.Time{}, false
	}

	if !entry.Next.IsZero() {
		return entry.Next, true
	}

	// the scheduler is not running yet
	return entry.Schedule.Next(time.Now().In(t.cron.Location())), true
}

// Open handles a tapped reminder link
func (t *Transport) Open(ctx context.Context, link string) (notify.Intent, error) {
	payload, err := notify.DecodeURL(link)
	if err != nil {
		return notify.Intent{}, err
	}

	handler := t.currentHandler()
	if handler == nil {
		return notify.IntentFor(payload)
	}

	return handler.OnTap(ctx, payload)
}

func (t *Transport) currentHandler() notify.EventHandler {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.handler
}

func (t *Transport) deliver(ctx context.Context, notification notify.Notification) error {
	t.mu.Lock()
	foreground := t.foreground
	handler := t.handler
	t.mu.Unlock()

	if foreground {
		if handler != nil {
			handler.OnForegroundReceive(ctx, notification.Payload)
		}

		return nil
	}

	message := pushover.NewMessageWithTitle(notification.Body, notification.Title)
	message.Timestamp = time.Now().Unix()

	link, err := notify.EncodeURL(notification.Payload)
	if err != nil {
		return err
	}

	message.URL = link
	message.URLTitle = "Record this dose"

	_, err = t.sender.SendMessage(message, t.recipient)
	if err != nil {
		return fmt.Errorf("failed to send pushover message: %w", err)
	}

	glog.Infof("pushed reminder for %s", notification.Payload.Time)

	return nil
}

// cronLogger sends cron's own logging to glog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	glog.V(2).Infof("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	glog.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
