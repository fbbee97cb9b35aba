// Package lifecycle decides when reminders are resynced and when the day's
// status record is prepared, for the signed in user.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.0xdad.com/tblyler/meditime/adherence"
	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/notify"
	"git.0xdad.com/tblyler/meditime/status"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// DefaultDayCheckInterval between day rollover checks in Run
const DefaultDayCheckInterval = time.Minute

var (
	// ErrNoUser occurs when user scoped work is requested while nobody is signed in
	ErrNoUser = errors.New("no user signed in")
)

// Repository of medications
type Repository interface {
	ListActiveMedications(idUser uuid.UUID, now time.Time) ([]*db.Medication, error)
	SubscribeMedications(ctx context.Context, idUser uuid.UUID, onChange func([]*db.Medication) error) error
}

// PermissionRequester asks for permission to deliver reminders
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (bool, error)
}

type permission int

const (
	permissionUnknown permission = iota
	permissionGranted
	permissionDenied
)

// Config for a Coordinator
type Config struct {
	Repository Repository
	Store      *status.Store
	// Engine and Permissions may be nil for a coordinator that only prepares
	// and reads status records
	Engine      *notify.Engine
	Permissions PermissionRequester
	// Now defaults to time.Now
	Now func() time.Time
	// DayCheckInterval defaults to DefaultDayCheckInterval
	DayCheckInterval time.Duration
}

// Coordinator owns the process wide reminder state of one signed in user: the
// permission outcome, the last day whose record was prepared and the latest
// medication snapshot.
type Coordinator struct {
	repo             Repository
	store            *status.Store
	engine           *notify.Engine
	permissions      PermissionRequester
	now              func() time.Time
	dayCheckInterval time.Duration
	resync           chan struct{}

	// serialises permission prompts
	permissionMu sync.Mutex

	mu           sync.Mutex
	user         uuid.UUID
	permission   permission
	lastChecked  string
	medications  []*db.Medication
	haveSnapshot bool
}

// New coordinator, nobody is signed in until Login
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		repo:             cfg.Repository,
		store:            cfg.Store,
		engine:           cfg.Engine,
		permissions:      cfg.Permissions,
		now:              cfg.Now,
		dayCheckInterval: cfg.DayCheckInterval,
		resync:           make(chan struct{}, 1),
	}

	if c.now == nil {
		c.now = time.Now
	}

	if c.dayCheckInterval <= 0 {
		c.dayCheckInterval = DefaultDayCheckInterval
	}

	return c
}

// Login switches the coordinator to a user, forgetting the previous user's state
func (c *Coordinator) Login(idUser uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = idUser
	c.lastChecked = ""
	c.medications = nil
	c.haveSnapshot = false
}

// Logout stops all user scoped work
func (c *Coordinator) Logout() {
	c.Login(uuid.Nil)
}

// User currently signed in
func (c *Coordinator) User() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.user, c.user != uuid.Nil
}

// Permitted reports whether reminder permission has been granted
func (c *Coordinator) Permitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.permission == permissionGranted
}

// EnsurePermission asks for permission the first time and remembers the answer
// for the coordinator's lifetime, a denial is never asked again. A failed
// request leaves the question open. Becoming granted resyncs reminders.
func (c *Coordinator) EnsurePermission(ctx context.Context) bool {
	c.permissionMu.Lock()
	defer c.permissionMu.Unlock()

	c.mu.Lock()
	current := c.permission
	c.mu.Unlock()

	if current != permissionUnknown {
		return current == permissionGranted
	}

	if c.permissions == nil {
		return false
	}

	granted, err := c.permissions.RequestPermission(ctx)
	if err != nil {
		glog.Errorf("failed to request reminder permission: %v", err)
		return false
	}

	c.mu.Lock()
	if granted {
		c.permission = permissionGranted
	} else {
		c.permission = permissionDenied
	}
	c.mu.Unlock()

	if !granted {
		glog.Warning("reminder permission denied, reminders will not be scheduled")
		return false
	}

	glog.Info("reminder permission granted")

	err = c.sync(ctx)
	if err != nil {
		glog.Errorf("failed to resync reminders after permission was granted: %v", err)
	}

	return true
}

// OnDayBoundaryOrAppForeground prepares today's status record once per observed
// day. Observing a new day after an earlier one also resyncs reminders, since
// limited courses may have ended.
func (c *Coordinator) OnDayBoundaryOrAppForeground(ctx context.Context) error {
	idUser, ok := c.User()
	if !ok {
		return nil
	}

	now := c.now()
	today := status.TodayKey(now)

	c.mu.Lock()
	previous := c.lastChecked
	c.mu.Unlock()

	if previous == today {
		return nil
	}

	medications, err := c.currentMedications(idUser, now)
	if err != nil {
		return err
	}

	_, err = c.store.EnsureTodayRecord(idUser, medications, now)
	if err != nil {
		return fmt.Errorf("failed to prepare status record for %s: %w", today, err)
	}

	c.mu.Lock()
	if c.user == idUser {
		c.lastChecked = today
	}
	c.mu.Unlock()

	if previous != "" {
		glog.Infof("day rolled over from %s to %s", previous, today)
		return c.sync(ctx)
	}

	return nil
}

// OnMedicationsChanged takes a new medication snapshot: reminders are resynced
// and slots new to today are added to today's record once it exists
func (c *Coordinator) OnMedicationsChanged(ctx context.Context, medications []*db.Medication) error {
	idUser, ok := c.User()
	if !ok {
		return nil
	}

	c.mu.Lock()
	c.medications = medications
	c.haveSnapshot = true
	prepared := c.lastChecked
	c.mu.Unlock()

	syncErr := c.sync(ctx)

	now := c.now()
	if prepared == status.TodayKey(now) {
		_, err := c.store.EnsureTodayRecord(idUser, medications, now)
		if err != nil {
			glog.Errorf("failed to merge medication changes into today's record: %v", err)
		}
	}

	return syncErr
}

// ForceResync reloads the medication list and resyncs reminders
func (c *Coordinator) ForceResync(ctx context.Context) error {
	idUser, ok := c.User()
	if !ok {
		return ErrNoUser
	}

	medications, err := c.repo.ListActiveMedications(idUser, c.now())
	if err != nil {
		return fmt.Errorf("failed to reload medications: %w", err)
	}

	c.mu.Lock()
	c.medications = medications
	c.haveSnapshot = true
	c.mu.Unlock()

	return c.sync(ctx)
}

// RequestResync asks a running Run loop to ForceResync, without blocking
func (c *Coordinator) RequestResync() {
	select {
	case c.resync <- struct{}{}:
	default:
	}
}

// Summary of today for the signed in user. A status read failure still yields
// a summary with every dose pending, returned together with the error.
func (c *Coordinator) Summary(ctx context.Context) (*adherence.Summary, error) {
	idUser, ok := c.User()
	if !ok {
		return nil, ErrNoUser
	}

	now := c.now()
	medications, err := c.currentMedications(idUser, now)
	if err != nil {
		return nil, err
	}

	day, err := c.store.Today(idUser, now)

	return adherence.Summarize(medications, day, now), err
}

// Run drives the coordinator for the signed in user until ctx is done: every
// medication snapshot resyncs reminders, bursts of snapshots collapse to the
// newest, and the day rollover check runs right away and then periodically.
func (c *Coordinator) Run(ctx context.Context) error {
	idUser, ok := c.User()
	if !ok {
		return ErrNoUser
	}

	subCtx, unsubscribe := context.WithCancel(ctx)
	defer unsubscribe()

	snapshots := make(chan []*db.Medication, 1)
	subscriptionDone := make(chan error, 1)
	go func() {
		subscriptionDone <- c.repo.SubscribeMedications(subCtx, idUser, func(medications []*db.Medication) error {
			offerLatest(snapshots, medications)
			return nil
		})
	}()

	c.EnsurePermission(ctx)

	ticker := time.NewTicker(c.dayCheckInterval)
	defer ticker.Stop()

	err := c.OnDayBoundaryOrAppForeground(ctx)
	if err != nil {
		glog.Errorf("day check failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-subscriptionDone:
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("medication subscription ended: %w", err)

		case medications := <-snapshots:
			glog.V(1).Infof("medication snapshot with %d medications", len(medications))

			err := c.OnMedicationsChanged(ctx, medications)
			if err != nil {
				glog.Errorf("resync after medication change failed: %v", err)
			}

		case <-c.resync:
			err := c.ForceResync(ctx)
			if err != nil {
				glog.Errorf("forced resync failed: %v", err)
			}

		case <-ticker.C:
			err := c.OnDayBoundaryOrAppForeground(ctx)
			if err != nil {
				glog.Errorf("day check failed: %v", err)
			}
		}
	}
}

// offerLatest replaces whatever snapshot is waiting with the new one
func offerLatest(ch chan []*db.Medication, medications []*db.Medication) {
	for {
		select {
		case ch <- medications:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

func (c *Coordinator) sync(ctx context.Context) error {
	idUser, ok := c.User()
	if !ok || c.engine == nil {
		return nil
	}

	medications, err := c.currentMedications(idUser, c.now())
	if err != nil {
		return err
	}

	err = c.engine.Sync(ctx, medications, c.Permitted())
	if errors.Is(err, notify.ErrPermissionDenied) {
		return nil
	}

	return err
}

func (c *Coordinator) currentMedications(idUser uuid.UUID, now time.Time) ([]*db.Medication, error) {
	c.mu.Lock()
	medications, have := c.medications, c.haveSnapshot
	c.mu.Unlock()

	if have {
		return medications, nil
	}

	medications, err := c.repo.ListActiveMedications(idUser, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load medications for user %s: %w", idUser, err)
	}

	return medications, nil
}
