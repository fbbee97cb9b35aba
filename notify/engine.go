// Package notify keeps the transport's scheduled reminders in step with the
// active medication list, one reminder per distinct trigger time.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"github.com/golang/glog"
)

var (
	// ErrPermissionDenied occurs when a sync is requested without notification permission
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrSyncFailed occurs when the scheduled reminders could not be cleared
	ErrSyncFailed = errors.New("notification sync failed")
	// ErrTransport occurs when a single transport call fails
	ErrTransport = errors.New("notification transport error")
)

// SyncError wraps the cancel all failure that aborted a pass
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: failed to cancel scheduled reminders: %v", ErrSyncFailed, e.Err)
}

// Unwrap the transport error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is ErrSyncFailed
func (e *SyncError) Is(target error) bool {
	return target == ErrSyncFailed
}

// TransportError wraps the failure of one transport call
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
}

// Unwrap the transport error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Transport schedules repeating daily reminders
type Transport interface {
	RequestPermission(ctx context.Context) (bool, error)
	ScheduleDaily(ctx context.Context, hour, minute int, notification Notification) (string, error)
	Cancel(ctx context.Context, handle string) error
	CancelAll(ctx context.Context) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// EventHandler receives deliveries coming back from the transport
type EventHandler interface {
	OnTap(ctx context.Context, payload Payload) (Intent, error)
	OnForegroundReceive(ctx context.Context, payload Payload) Presentation
}

// Presentation of a reminder that arrives while the app is in the foreground
type Presentation struct {
	ShowAlert bool
	PlaySound bool
	SetBadge  bool
}

// State of the scheduled reminder set
type State int

const (
	Unsynced State = iota
	Syncing
	Synced
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unsynced"
	}
}

// PassResult summarizes the last completed sync pass
type PassResult struct {
	At        time.Time
	Scheduled int
	Failed    int
}

type request struct {
	medications []*db.Medication
	permitted   bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the source of the current time, which decides the day that
// limited courses are evaluated against
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIntentHandler is called with the navigation intent of every tapped reminder
func WithIntentHandler(fn func(Intent)) Option {
	return func(e *Engine) {
		e.onIntent = fn
	}
}

// WithAfterPass is called after every completed sync pass, before any queued
// follow up pass starts
func WithAfterPass(fn func(ctx context.Context, result PassResult)) Option {
	return func(e *Engine) {
		e.afterPass = fn
	}
}

// Engine runs sync passes against a transport. Passes never overlap; requests
// arriving during a pass collapse into one follow up pass with the newest list.
type Engine struct {
	transport Transport
	now       func() time.Time
	onIntent  func(Intent)
	afterPass func(context.Context, PassResult)

	mu       sync.Mutex
	state    State
	handles  map[string]string
	running  bool
	pending  *request
	lastPass PassResult
}

// NewEngine for the given transport
func NewEngine(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		now:       time.Now,
		handles:   map[string]string{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Sync the transport to the medication list. Without permission nothing is
// touched and ErrPermissionDenied is returned. If a pass is already running the
// request is queued behind it, replacing any request queued earlier, and Sync
// returns nil right away.
func (e *Engine) Sync(ctx context.Context, medications []*db.Medication, permitted bool) error {
	req := &request{medications: medications, permitted: permitted}

	e.mu.Lock()
	if e.running {
		e.pending = req
		e.mu.Unlock()
		glog.V(1).Infof("sync pass in flight, queued %d medications", len(medications))
		return nil
	}
	e.running = true
	e.mu.Unlock()

	var err error
	for req != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			err = e.pass(ctx, req)
			if err == nil && e.afterPass != nil {
				e.afterPass(ctx, e.LastPass())
			}
		}

		e.mu.Lock()
		req = e.pending
		e.pending = nil
		if req == nil || ctx.Err() != nil {
			req = nil
			e.running = false
		}
		e.mu.Unlock()
	}

	return err
}

func (e *Engine) pass(ctx context.Context, req *request) error {
	if !req.permitted {
		glog.Info("notification permission not granted, skipping sync pass")
		return ErrPermissionDenied
	}

	e.setState(Syncing)

	err := e.transport.CancelAll(ctx)
	if err != nil {
		e.setState(Unsynced)
		return &SyncError{Err: err}
	}

	e.mu.Lock()
	e.handles = map[string]string{}
	e.mu.Unlock()

	now := e.now()
	groups := BuildGroups(req.medications, now)
	result := PassResult{At: now}

	for _, group := range groups {
		handle, err := e.transport.ScheduleDaily(ctx, group.Time.Hour, group.Time.Minute, NewNotification(group))
		if err != nil {
			result.Failed++
			glog.Errorf("%v", &TransportError{Op: fmt.Sprintf("schedule reminder at %s", group.Time), Err: err})
			continue
		}

		result.Scheduled++
		glog.V(1).Infof("scheduled reminder %s at %s for %d medications", handle, group.Time, len(group.Medications))

		e.mu.Lock()
		e.handles[group.Time.String()] = handle
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.state = Synced
	e.lastPass = result
	e.mu.Unlock()

	glog.Infof("sync pass scheduled %d reminders, %d failed", result.Scheduled, result.Failed)

	return nil
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// State of the scheduled reminder set
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// LastPass summary
func (e *Engine) LastPass() PassResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastPass
}

// Handles maps each scheduled "HH:MM" to its transport handle
func (e *Engine) Handles() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	handles := make(map[string]string, len(e.handles))
	for t, handle := range e.handles {
		handles[t] = handle
	}

	return handles
}

// Outstanding returns handles the transport reports as scheduled that the
// engine did not schedule in its last pass
func (e *Engine) Outstanding(ctx context.Context) ([]string, error) {
	scheduled, err := e.transport.ListScheduled(ctx)
	if err != nil {
		return nil, &TransportError{Op: "list scheduled reminders", Err: err}
	}

	known := map[string]bool{}
	for _, handle := range e.Handles() {
		known[handle] = true
	}

	var outstanding []string
	for _, handle := range scheduled {
		if !known[handle] {
			outstanding = append(outstanding, handle)
		}
	}

	return outstanding, nil
}

// OnTap decodes a tapped reminder into a navigation intent and hands it to the
// intent handler
func (e *Engine) OnTap(ctx context.Context, payload Payload) (Intent, error) {
	intent, err := IntentFor(payload)
	if err != nil {
		glog.Warningf("ignoring tapped reminder: %v", err)
		return Intent{}, err
	}

	if e.onIntent != nil {
		e.onIntent(intent)
	}

	return intent, nil
}

// OnForegroundReceive logs the reminder and asks for it not to be shown, the
// user already has the app open
func (e *Engine) OnForegroundReceive(ctx context.Context, payload Payload) Presentation {
	glog.Infof("reminder for %s received in foreground (%s), not alerting", payload.Time, payload.Type)

	return Presentation{}
}
