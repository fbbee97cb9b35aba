package adherence

import (
	"errors"
	"testing"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/schedule"
	"git.0xdad.com/tblyler/meditime/status"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// memBackend keeps daily records in memory
type memBackend struct {
	records map[string]*db.DailyStatus
}

func (m *memBackend) DailyStatus(idUser uuid.UUID, date string) (*db.DailyStatus, error) {
	record, ok := m.records[idUser.String()+date]
	if !ok {
		return nil, db.ErrNotFound
	}

	return record, nil
}

func (m *memBackend) UpdateDailyStatus(idUser uuid.UUID, date string, update func(*db.DailyStatus, bool) (bool, error)) error {
	record, exists := m.records[idUser.String()+date]
	if !exists {
		record = &db.DailyStatus{IDUser: idUser, Date: date}
	}

	changed, err := update(record, exists)
	if err != nil || !changed {
		return err
	}

	m.records[idUser.String()+date] = record

	return nil
}

func newStore() *status.Store {
	return status.NewStore(&memBackend{records: map[string]*db.DailyStatus{}})
}

func fixed(t *testing.T, name string, times ...string) *db.Medication {
	t.Helper()

	f, err := schedule.NewFixedTimes(times...)
	if err != nil {
		t.Fatalf("NewFixedTimes unexpected error: %v", err)
	}

	return &db.Medication{
		ID:       uuid.New(),
		Name:     name,
		Schedule: schedule.Descriptor{FixedTimes: f},
		Duration: db.Duration{Permanent: true},
		IsActive: true,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 10, hour, minute, 0, 0, time.Local)
}

func TestTodayProgress(t *testing.T) {
	store := newStore()
	idUser := uuid.New()
	now := at(21, 0)

	aspirin := fixed(t, "aspirin", "08:00", "14:00", "20:00")
	vitamin := fixed(t, "vitamin-d", "08:00", "20:00")
	medications := []*db.Medication{aspirin, vitamin}

	if _, err := store.EnsureTodayRecord(idUser, medications, now); err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	for _, set := range []struct {
		medication *db.Medication
		at         string
		status     db.Status
	}{
		{aspirin, "08:00", db.StatusTaken},
		{vitamin, "20:00", db.StatusTaken},
		{aspirin, "14:00", db.StatusMissed},
	} {
		if err := store.SetStatus(idUser, set.medication.ID, set.at, set.status, now); err != nil {
			t.Fatalf("SetStatus unexpected error: %v", err)
		}
	}

	day, err := store.Today(idUser, now)
	if err != nil {
		t.Fatalf("Today unexpected error: %v", err)
	}

	got := TodayProgress(medications, day, now)
	if diff := cmp.Diff(got, Progress{Taken: 2, Total: 5}); diff != "" {
		t.Errorf("Bad progress; diff (-got +want)\n%s", diff)
	}
}

func TestNextUpcoming(t *testing.T) {
	store := newStore()
	idUser := uuid.New()

	aspirin := fixed(t, "aspirin", "08:00", "20:00")
	vitamin := fixed(t, "vitamin-d", "12:00")
	medications := []*db.Medication{aspirin, vitamin}

	day, _ := store.Today(idUser, at(7, 0))

	next := NextUpcoming(medications, day, at(7, 0))
	if next == nil || next.Medication != aspirin || next.Time.String() != "08:00" || next.Tomorrow {
		t.Fatalf("NextUpcoming at 07:00 = %+v, want aspirin at 08:00 today", next)
	}

	// the current minute still counts as upcoming
	next = NextUpcoming(medications, day, at(12, 0))
	if next == nil || next.Medication != vitamin || next.Time.String() != "12:00" {
		t.Fatalf("NextUpcoming at 12:00 = %+v, want vitamin-d at 12:00", next)
	}

	if err := store.SetStatus(idUser, vitamin.ID, "12:00", db.StatusTaken, at(11, 0)); err != nil {
		t.Fatalf("SetStatus unexpected error: %v", err)
	}

	day, _ = store.Today(idUser, at(11, 0))
	next = NextUpcoming(medications, day, at(11, 0))
	if next == nil || next.Medication != aspirin || next.Time.String() != "20:00" {
		t.Fatalf("NextUpcoming after taking vitamin-d = %+v, want aspirin at 20:00", next)
	}

	next = NextUpcoming(medications, day, at(21, 0))
	if next == nil || !next.Tomorrow || next.Medication != aspirin || next.Time.String() != "08:00" {
		t.Fatalf("NextUpcoming at 21:00 = %+v, want aspirin at 08:00 tomorrow", next)
	}
}

func TestNextUpcomingWithoutMedications(t *testing.T) {
	if next := NextUpcoming(nil, &status.Day{}, at(9, 0)); next != nil {
		t.Errorf("NextUpcoming without medications = %+v, want nil", next)
	}

	paused := fixed(t, "paused", "10:00")
	paused.IsActive = false
	if next := NextUpcoming([]*db.Medication{paused}, nil, at(9, 0)); next != nil {
		t.Errorf("NextUpcoming with only inactive medications = %+v, want nil", next)
	}
}

func TestNextUpcomingTomorrowSkipsEndedCourse(t *testing.T) {
	endsToday := fixed(t, "antibiotic", "06:00")
	endsToday.Duration = db.Duration{Days: 1}
	endsToday.CreatedAt = at(5, 0)
	ongoing := fixed(t, "aspirin", "09:00")

	next := NextUpcoming([]*db.Medication{endsToday, ongoing}, nil, at(22, 0))
	if next == nil || next.Medication != ongoing || !next.Tomorrow {
		t.Errorf("NextUpcoming = %+v, want aspirin tomorrow", next)
	}
}

func TestStatusOptions(t *testing.T) {
	eight := schedule.MustParseTimeOfDay("08:00")

	tests := []struct {
		name string
		now  time.Time
		want []db.Status
	}{
		{name: "before", now: at(7, 0), want: []db.Status{db.StatusPending, db.StatusTaken}},
		{name: "same minute", now: at(8, 0), want: []db.Status{db.StatusPending, db.StatusTaken}},
		{name: "after", now: at(9, 0), want: []db.Status{db.StatusTaken, db.StatusMissed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(StatusOptions(eight, tt.now), tt.want); diff != "" {
				t.Errorf("Bad options; diff (-got +want)\n%s", diff)
			}
		})
	}

	if err := CheckChoice(eight, db.StatusMissed, at(7, 0)); !errors.Is(err, ErrStatusNotOffered) {
		t.Errorf("CheckChoice(missed before time) error = %v, want ErrStatusNotOffered", err)
	}

	if err := CheckChoice(eight, db.StatusPending, at(9, 0)); !errors.Is(err, ErrStatusNotOffered) {
		t.Errorf("CheckChoice(pending after time) error = %v, want ErrStatusNotOffered", err)
	}

	if err := CheckChoice(eight, db.StatusTaken, at(9, 0)); err != nil {
		t.Errorf("CheckChoice(taken after time) unexpected error: %v", err)
	}
}

func TestSummarizeFlagsOverdueWithoutWriting(t *testing.T) {
	store := newStore()
	idUser := uuid.New()
	now := at(9, 0)
	aspirin := fixed(t, "aspirin", "08:00", "20:00")
	medications := []*db.Medication{aspirin}

	if _, err := store.EnsureTodayRecord(idUser, medications, now); err != nil {
		t.Fatalf("EnsureTodayRecord unexpected error: %v", err)
	}

	day, _ := store.Today(idUser, now)
	summary := Summarize(medications, day, now)

	if len(summary.Rows) != 2 {
		t.Fatalf("Summarize returned %d rows, want 2", len(summary.Rows))
	}

	if !summary.Rows[0].Overdue || summary.Rows[0].Status != db.StatusPending {
		t.Errorf("08:00 row = %+v, want pending and overdue", summary.Rows[0])
	}

	if summary.Rows[1].Overdue {
		t.Errorf("20:00 row flagged overdue")
	}

	stored, err := store.GetStatus(idUser, aspirin.ID, "08:00", now)
	if err != nil || stored != db.StatusPending {
		t.Errorf("stored status after Summarize = %q, %v, want pending", stored, err)
	}

	if summary.Next == nil || summary.Next.Time.String() != "20:00" {
		t.Errorf("summary next = %+v, want 20:00", summary.Next)
	}
}

func TestStreakFor(t *testing.T) {
	if got := StreakFor(&db.Medication{Streak: 12}); got != 12 {
		t.Errorf("StreakFor = %d, want 12", got)
	}

	if got := StreakFor(&db.Medication{Streak: -3}); got != 0 {
		t.Errorf("StreakFor negative = %d, want 0", got)
	}
}
