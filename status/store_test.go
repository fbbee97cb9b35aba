package status

import (
	"errors"
	"testing"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var errBroken = errors.New("disk on fire")

// brokenBackend fails every call
type brokenBackend struct{}

func (brokenBackend) DailyStatus(uuid.UUID, string) (*db.DailyStatus, error) {
	return nil, errBroken
}

func (brokenBackend) UpdateDailyStatus(uuid.UUID, string, func(*db.DailyStatus, bool) (bool, error)) error {
	return errBroken
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	b, err := db.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger unexpected error: %v", err)
	}

	t.Cleanup(func() {
		b.Close()
	})

	return NewStore(b)
}

func medication(t *testing.T, name string, times ...string) *db.Medication {
	t.Helper()

	fixed, err := schedule.NewFixedTimes(times...)
	if err != nil {
		t.Fatalf("NewFixedTimes unexpected error: %v", err)
	}

	return &db.Medication{
		ID:       uuid.New(),
		Name:     name,
		Schedule: schedule.Descriptor{FixedTimes: fixed},
		Duration: db.Duration{Permanent: true},
		IsActive: true,
	}
}

func morning() time.Time {
	return time.Date(2024, time.March, 10, 9, 0, 0, 0, time.Local)
}

func TestTodayKey(t *testing.T) {
	if got := TodayKey(time.Date(2024, time.January, 5, 23, 59, 0, 0, time.Local)); got != "2024-01-05" {
		t.Errorf("TodayKey = %q, want 2024-01-05", got)
	}

	// 23:30 UTC is already the next day five hours east
	east := time.FixedZone("UTC+5", 5*60*60)
	if got := TodayKey(time.Date(2024, time.January, 5, 23, 30, 0, 0, time.UTC).In(east)); got != "2024-01-06" {
		t.Errorf("TodayKey in local zone = %q, want 2024-01-06", got)
	}
}

func TestEnsureTodayRecordIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	idUser := uuid.New()
	aspirin := medication(t, "aspirin", "08:00", "20:00")
	vitamin := medication(t, "vitamin-d", "08:00")
	medications := []*db.Medication{aspirin, vitamin}
	now := morning()

	added, err := store.EnsureTodayRecord(idUser, medications, now)
	if err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	if added != 3 {
		t.Errorf("first EnsureTodayRecord added %d entries, want 3", added)
	}

	if err := store.SetStatus(idUser, aspirin.ID, "08:00", db.StatusTaken, now); err != nil {
		t.Fatalf("SetStatus unexpected error: %v", err)
	}

	if err := store.SetStatus(idUser, vitamin.ID, "08:00", db.StatusMissed, now); err != nil {
		t.Fatalf("SetStatus unexpected error: %v", err)
	}

	added, err = store.EnsureTodayRecord(idUser, medications, now)
	if err != nil {
		t.Fatalf("second EnsureTodayRecord unexpected error: %v", err)
	}

	if added != 0 {
		t.Errorf("second EnsureTodayRecord added %d entries, want 0", added)
	}

	day, err := store.Today(idUser, now)
	if err != nil {
		t.Fatalf("Today unexpected error: %v", err)
	}

	if day.Len() != 3 {
		t.Errorf("record has %d entries, want 3", day.Len())
	}

	got := map[string]db.Status{
		"aspirin 08:00":   day.Status(aspirin.ID, schedule.MustParseTimeOfDay("08:00")),
		"aspirin 20:00":   day.Status(aspirin.ID, schedule.MustParseTimeOfDay("20:00")),
		"vitamin-d 08:00": day.Status(vitamin.ID, schedule.MustParseTimeOfDay("08:00")),
	}
	want := map[string]db.Status{
		"aspirin 08:00":   db.StatusTaken,
		"aspirin 20:00":   db.StatusPending,
		"vitamin-d 08:00": db.StatusMissed,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad statuses; diff (-got +want)\n%s", diff)
	}
}

func TestEnsureTodayRecordMergesNewSlots(t *testing.T) {
	store := newTestStore(t)
	idUser := uuid.New()
	aspirin := medication(t, "aspirin", "08:00")
	now := morning()

	if _, err := store.EnsureTodayRecord(idUser, []*db.Medication{aspirin}, now); err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	if err := store.SetStatus(idUser, aspirin.ID, "08:00", db.StatusTaken, now); err != nil {
		t.Fatalf("SetStatus unexpected error: %v", err)
	}

	// the medication gains an evening dose mid day
	edited, _ := schedule.NewFixedTimes("08:00", "20:00")
	aspirin.Schedule = schedule.Descriptor{FixedTimes: edited}

	added, err := store.EnsureTodayRecord(idUser, []*db.Medication{aspirin}, now)
	if err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	if added != 1 {
		t.Errorf("EnsureTodayRecord added %d entries, want 1", added)
	}

	status, err := store.GetStatus(idUser, aspirin.ID, "08:00", now)
	if err != nil || status != db.StatusTaken {
		t.Errorf("GetStatus(08:00) = %q, %v, want taken", status, err)
	}

	status, err = store.GetStatus(idUser, aspirin.ID, "20:00", now)
	if err != nil || status != db.StatusPending {
		t.Errorf("GetStatus(20:00) = %q, %v, want pending", status, err)
	}
}

func TestEnsureTodayRecordSkipsInactive(t *testing.T) {
	store := newTestStore(t)
	idUser := uuid.New()
	paused := medication(t, "paused", "08:00")
	paused.IsActive = false

	added, err := store.EnsureTodayRecord(idUser, []*db.Medication{paused}, morning())
	if err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	if added != 0 {
		t.Errorf("EnsureTodayRecord added %d entries for an inactive medication", added)
	}
}

func TestRollover(t *testing.T) {
	store := newTestStore(t)
	idUser := uuid.New()
	aspirin := medication(t, "aspirin", "08:00")
	today := morning()
	tomorrow := today.AddDate(0, 0, 1)

	if _, err := store.EnsureTodayRecord(idUser, []*db.Medication{aspirin}, today); err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	if err := store.SetStatus(idUser, aspirin.ID, "08:00", db.StatusTaken, today); err != nil {
		t.Fatalf("SetStatus unexpected error: %v", err)
	}

	if _, err := store.EnsureTodayRecord(idUser, []*db.Medication{aspirin}, tomorrow); err != nil {
		t.Fatalf("EnsureTodayRecord on the next day unexpected error: %v", err)
	}

	status, err := store.GetStatus(idUser, aspirin.ID, "08:00", tomorrow)
	if err != nil || status != db.StatusPending {
		t.Errorf("GetStatus tomorrow = %q, %v, want pending", status, err)
	}

	yesterday, err := store.OnDate(idUser, TodayKey(today))
	if err != nil {
		t.Fatalf("OnDate unexpected error: %v", err)
	}

	if got := yesterday.Status(aspirin.ID, schedule.MustParseTimeOfDay("08:00")); got != db.StatusTaken {
		t.Errorf("previous day status = %q, want taken", got)
	}

	if err := store.SetStatusOn(idUser, TodayKey(today), aspirin.ID, "08:00", db.StatusMissed); err != nil {
		t.Fatalf("SetStatusOn unexpected error: %v", err)
	}

	yesterday, _ = store.OnDate(idUser, TodayKey(today))
	if got := yesterday.Status(aspirin.ID, schedule.MustParseTimeOfDay("08:00")); got != db.StatusMissed {
		t.Errorf("previous day status after explicit edit = %q, want missed", got)
	}
}

func TestSetStatusValidation(t *testing.T) {
	store := newTestStore(t)
	idUser := uuid.New()

	if err := store.SetStatus(idUser, uuid.New(), "08:00", db.Status("skipped"), morning()); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("SetStatus with unknown status error = %v, want ErrInvalidStatus", err)
	}

	if err := store.SetStatus(idUser, uuid.New(), "8am", db.StatusTaken, morning()); !errors.Is(err, schedule.ErrInvalidTimeFormat) {
		t.Errorf("SetStatus with bad time error = %v, want ErrInvalidTimeFormat", err)
	}

	if err := store.SetStatusOn(idUser, "yesterday", uuid.New(), "08:00", db.StatusTaken); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("SetStatusOn with bad date error = %v, want ErrInvalidDate", err)
	}
}

func TestGetStatusDefaultsToPending(t *testing.T) {
	store := newTestStore(t)

	status, err := store.GetStatus(uuid.New(), uuid.New(), "08:00", morning())
	if err != nil {
		t.Fatalf("GetStatus unexpected error: %v", err)
	}

	if status != db.StatusPending {
		t.Errorf("GetStatus of unknown slot = %q, want pending", status)
	}
}

func TestPersistenceFailures(t *testing.T) {
	store := NewStore(brokenBackend{})
	idUser := uuid.New()

	status, err := store.GetStatus(idUser, uuid.New(), "08:00", morning())
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("GetStatus error = %v, want ErrPersistence", err)
	}

	if status != db.StatusPending {
		t.Errorf("GetStatus on failure = %q, want pending", status)
	}

	day, err := store.Today(idUser, morning())
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errBroken) {
		t.Errorf("Today error = %v, want ErrPersistence wrapping the backend error", err)
	}

	if day == nil || day.Len() != 0 {
		t.Errorf("Today on failure = %+v, want an empty day", day)
	}

	if err := store.SetStatus(idUser, uuid.New(), "08:00", db.StatusTaken, morning()); !errors.Is(err, ErrPersistence) {
		t.Errorf("SetStatus error = %v, want ErrPersistence", err)
	}

	if _, err := store.EnsureTodayRecord(idUser, nil, morning()); !errors.Is(err, ErrPersistence) {
		t.Errorf("EnsureTodayRecord error = %v, want ErrPersistence", err)
	}
}
