package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"git.0xdad.com/tblyler/meditime/config"
	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/lifecycle"
	"git.0xdad.com/tblyler/meditime/notify"
	"git.0xdad.com/tblyler/meditime/reminder"
	"git.0xdad.com/tblyler/meditime/status"
	"github.com/golang/glog"
	"github.com/gregdel/pushover"
	"golang.org/x/sync/errgroup"
)

// newReminderStack wires a transport and an engine so taps and foreground
// deliveries reach the engine, and every sync pass is reported
func newReminderStack(sender reminder.Sender, recipient *pushover.Recipient, location *time.Location, name string, onIntent func(notify.Intent)) (*reminder.Transport, *notify.Engine) {
	transport := reminder.New(sender, recipient, location)

	var engine *notify.Engine
	engine = notify.NewEngine(
		transport,
		notify.WithClock(func() time.Time {
			return time.Now().In(location)
		}),
		notify.WithIntentHandler(onIntent),
		notify.WithAfterPass(func(ctx context.Context, result notify.PassResult) {
			reportPass(ctx, name, engine, transport, result)
		}),
	)
	transport.SetHandler(engine)

	return transport, engine
}

// nextReminders lists every reminder the engine scheduled with its next fire time
func nextReminders(engine *notify.Engine, transport *reminder.Transport) []string {
	handles := engine.Handles()

	times := make([]string, 0, len(handles))
	for t := range handles {
		times = append(times, t)
	}

	sort.Strings(times)

	lines := make([]string, 0, len(times))
	for _, t := range times {
		next, ok := transport.Next(handles[t])
		if !ok {
			lines = append(lines, fmt.Sprintf("%s not scheduled", t))
			continue
		}

		lines = append(lines, fmt.Sprintf("%s next at %s", t, next.Format(time.RFC3339)))
	}

	return lines
}

func reportPass(ctx context.Context, name string, engine *notify.Engine, transport *reminder.Transport, result notify.PassResult) {
	glog.Infof("reminders for %s synced at %s: %d scheduled, %d failed", name, result.At.Format(time.RFC3339), result.Scheduled, result.Failed)

	for _, line := range nextReminders(engine, transport) {
		glog.V(1).Infof("reminder for %s %s", name, line)
	}

	outstanding, err := engine.Outstanding(ctx)
	if err != nil {
		glog.Errorf("failed to list scheduled reminders for %s: %v", name, err)
		return
	}

	if len(outstanding) > 0 {
		glog.Warningf("reminders for %s scheduled outside the last sync: %v", name, outstanding)
	}
}

// userRunner is everything run keeps alive for one user
type userRunner struct {
	user        *db.User
	transport   *reminder.Transport
	engine      *notify.Engine
	coordinator *lifecycle.Coordinator
}

func newUserRunner(user *db.User, sender reminder.Sender, conf config.Config, b *db.Badger, foreground bool) (*userRunner, error) {
	token, ok := user.ReminderToken()
	if !ok {
		return nil, fmt.Errorf("user %s has no pushover device token for reminders", user.Name)
	}

	location, err := conf.Location()
	if err != nil {
		return nil, err
	}

	interval, err := conf.DayCheckInterval()
	if err != nil {
		return nil, err
	}

	transport, engine := newReminderStack(sender, pushover.NewRecipient(token), location, user.Name, func(intent notify.Intent) {
		glog.Infof("user %s opened reminder for %s: %v", user.Name, intent.Time, intent.MedicationIDs)
	})
	transport.SetForeground(foreground)

	coordinator := lifecycle.New(lifecycle.Config{
		Repository:  b,
		Store:       status.NewStore(b),
		Engine:      engine,
		Permissions: transport,
		Now: func() time.Time {
			return time.Now().In(location)
		},
		DayCheckInterval: interval,
	})
	coordinator.Login(user.ID)

	return &userRunner{
		user:        user,
		transport:   transport,
		engine:      engine,
		coordinator: coordinator,
	}, nil
}

// toggleForeground flips every runner between pushing reminders and keeping them
// in the foreground
func toggleForeground(runners []*userRunner) {
	for _, runner := range runners {
		foreground := !runner.transport.Foreground()
		runner.transport.SetForeground(foreground)
		glog.Infof("reminders for %s in foreground: %t", runner.user.Name, foreground)
	}
}

func runCommand(conf config.Config, b *db.Badger, foreground bool) error {
	apiToken, err := conf.PushoverAPIToken()
	if err != nil {
		return err
	}

	client := pushover.New(apiToken)

	users, err := b.ListUsers()
	if err != nil {
		return err
	}

	var runners []*userRunner
	for _, user := range users {
		runner, err := newUserRunner(user, client, conf, b, foreground)
		if err != nil {
			glog.Warningf("not running reminders for user %s: %v", user.Name, err)
			continue
		}

		runners = append(runners, runner)
	}

	if len(runners) == 0 {
		return errors.New("no users with a reminder device to run for")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
		defer signal.Stop(signals)

		for {
			select {
			case <-ctx.Done():
				return nil

			case sig := <-signals:
				switch sig {
				case syscall.SIGHUP:
					glog.Info("SIGHUP received, resyncing reminders")
					for _, runner := range runners {
						runner.coordinator.RequestResync()
					}

				case syscall.SIGUSR1:
					toggleForeground(runners)

				default:
					glog.Infof("%s received, shutting down", sig)
					cancel()

					return nil
				}
			}
		}
	})

	for _, runner := range runners {
		runner := runner

		runner.transport.Start()
		defer runner.transport.Stop()

		g.Go(func() error {
			glog.Infof("running reminders for user %s", runner.user.Name)

			err := runner.coordinator.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("reminders for user %s stopped: %w", runner.user.Name, err)
			}

			return nil
		})
	}

	return g.Wait()
}
