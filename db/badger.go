package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

var (
	// ErrNotFound occurs when a requested record does not exist
	ErrNotFound = errors.New("not found")
)

// Badger db implementation
type Badger struct {
	db       *badger.DB
	cancelGC func()
	wg       sync.WaitGroup
}

// NewBadger creates a new badger instance for the given path
func NewBadger(dbPath string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Badger{
		db:       db,
		cancelGC: cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for b.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return b, nil
}

// Close the database
func (b *Badger) Close() error {
	b.cancelGC()
	b.wg.Wait()

	return b.db.Close()
}

// AddUser to the database
func (b *Badger) AddUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal user: %w", err)
		}

		key := user.badgerKey()
		if _, err = tx.Get(key); err == nil {
			return fmt.Errorf("user %s already exists", user.Name)
		}

		return tx.Set(key, data)
	})
}

// GetUser from the database
func (b *Badger) GetUser(username string) (user *User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(badgerKeyForUsername(username))
		if err != nil {
			return fmt.Errorf("failed to get user value for username %s: %w", username, notFound(err))
		}

		user = &User{}

		return item.Value(func(val []byte) error {
			err = json.Unmarshal(val, user)
			if err != nil {
				return fmt.Errorf("failed to unmarshal user value for username %s: %w", username, err)
			}

			return nil
		})
	})

	if err != nil {
		user = nil
	}

	return
}

// ListUsers from the database
func (b *Badger) ListUsers() (users []*User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return iterate(tx, []byte("user:"), func(key, val []byte) error {
			user := &User{}
			err := json.Unmarshal(val, user)
			if err != nil {
				return fmt.Errorf("failed to unmarshal user value for user key %s: %w", string(key), err)
			}

			users = append(users, user)

			return nil
		})
	})

	return
}

// AddMedication to the database
func (b *Badger) AddMedication(medication *Medication) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(medication)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal medication: %w", err)
		}

		return tx.Set(medication.badgerKey(), data)
	})
}

// GetMedication for a user by its ID
func (b *Badger) GetMedication(idUser, id uuid.UUID) (medication *Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		medication, err = getMedication(tx, idUser, id)
		return err
	})

	return
}

// UpdateMedication applies patch to the stored medication and writes it back.
// Concurrent edits resolve as last write wins.
func (b *Badger) UpdateMedication(idUser, id uuid.UUID, patch func(*Medication) error) (medication *Medication, err error) {
	err = b.db.Update(func(tx *badger.Txn) error {
		medication, err = getMedication(tx, idUser, id)
		if err != nil {
			return err
		}

		err = patch(medication)
		if err != nil {
			return err
		}

		// identity is not patchable
		medication.IDUser = idUser
		medication.ID = id
		medication.UpdatedAt = time.Now()

		data, err := json.Marshal(medication)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal medication: %w", err)
		}

		return tx.Set(medication.badgerKey(), data)
	})

	if err != nil {
		medication = nil
	}

	return
}

func getMedication(tx *badger.Txn, idUser, id uuid.UUID) (*Medication, error) {
	item, err := tx.Get(badgerKeyForMedication(idUser, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get medication %s: %w", id, notFound(err))
	}

	medication := &Medication{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, medication)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal medication %s: %w", id, err)
	}

	return medication, nil
}

// RemoveMedication from the database
func (b *Badger) RemoveMedication(medication *Medication) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(medication.badgerKey())
	})
}

// ListMedicationsForUser from the database
func (b *Badger) ListMedicationsForUser(user *User) ([]*Medication, error) {
	return b.listMedications(badgerPrefixKeyForMedicationUser(user))
}

// ListActiveMedications for a user on now's calendar day
func (b *Badger) ListActiveMedications(idUser uuid.UUID, now time.Time) ([]*Medication, error) {
	medications, err := b.listMedications(badgerPrefixKeyForMedicationUserID(idUser))
	if err != nil {
		return nil, err
	}

	return FilterActive(medications, now), nil
}

func (b *Badger) listMedications(prefix []byte) (medications []*Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return iterate(tx, prefix, func(key, val []byte) error {
			medication := &Medication{}
			err := json.Unmarshal(val, medication)
			if err != nil {
				return fmt.Errorf("failed to unmarshal medication value for medication key %x: %w", key, err)
			}

			medications = append(medications, medication)

			return nil
		})
	})

	return
}

// SubscribeMedications calls onChange with the user's full medication list once
// right away and again after every committed change to it. It blocks until ctx
// is done, onChange returns an error, or the database closes.
func (b *Badger) SubscribeMedications(ctx context.Context, idUser uuid.UUID, onChange func([]*Medication) error) error {
	prefix := badgerPrefixKeyForMedicationUserID(idUser)

	snapshot := func() error {
		medications, err := b.listMedications(prefix)
		if err != nil {
			return fmt.Errorf("failed to list medications for user %s: %w", idUser, err)
		}

		return onChange(medications)
	}

	err := snapshot()
	if err != nil {
		return err
	}

	// the subscription batches keys, the list is reloaded instead of patched
	return b.db.Subscribe(ctx, func(*badger.KVList) error {
		return snapshot()
	}, prefix)
}

// DailyStatus record for a user on a date, ErrNotFound if there is none yet
func (b *Badger) DailyStatus(idUser uuid.UUID, date string) (record *DailyStatus, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		record, err = getDailyStatus(tx, idUser, date)
		return err
	})

	if err != nil {
		record = nil
	}

	return
}

// UpdateDailyStatus runs update against the user's record for date inside one
// transaction. A missing record is passed in empty with exists false. The
// record is only written when update reports a change.
func (b *Badger) UpdateDailyStatus(idUser uuid.UUID, date string, update func(record *DailyStatus, exists bool) (bool, error)) error {
	return b.db.Update(func(tx *badger.Txn) error {
		exists := true
		record, err := getDailyStatus(tx, idUser, date)
		if errors.Is(err, ErrNotFound) {
			exists = false
			record = &DailyStatus{
				IDUser:  idUser,
				Date:    date,
				Entries: map[string]Status{},
			}
		} else if err != nil {
			return err
		}

		changed, err := update(record, exists)
		if err != nil || !changed {
			return err
		}

		now := time.Now()
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal daily status: %w", err)
		}

		return tx.Set(badgerKeyForDailyStatus(idUser, date), data)
	})
}

func getDailyStatus(tx *badger.Txn, idUser uuid.UUID, date string) (*DailyStatus, error) {
	item, err := tx.Get(badgerKeyForDailyStatus(idUser, date))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily status for user %s on %s: %w", idUser, date, notFound(err))
	}

	record := &DailyStatus{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily status for user %s on %s: %w", idUser, date, err)
	}

	if record.Entries == nil {
		record.Entries = map[string]Status{}
	}

	return record, nil
}

func iterate(tx *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)

		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})

		if err != nil {
			return err
		}
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}

	return err
}
