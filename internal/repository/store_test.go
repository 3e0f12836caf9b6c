package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saunafleet/fleet-server/internal/database"
	"github.com/saunafleet/fleet-server/internal/model"
)

var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func openSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Connect(database.DialectSQLite, filepath.Join(t.TempDir(), "fleet.db"), 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	store := NewSQLStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storeBackends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(500 * time.Millisecond)
		},
		"file": func(t *testing.T) Store {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "store.json"), 500*time.Millisecond)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			return openSQLiteStore(t)
		},
	}
}

func sampleDevice(id string) model.Device {
	return model.Device{
		ID:        id,
		Name:      "Sauna " + id[:4],
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func TestStoreDevices(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			d := sampleDevice("7f9c2ba4-e88f-4d7b-a6a1-3c2d5f1e0b11")
			d.UseOverrides = true
			d.ConfigVersion = 2
			d.Overrides.Settings = model.Document{"version": 2, "theme": map[string]any{"color": "red"}}

			err := store.WithLock(ctx, func(tx Tx) error {
				return tx.Devices().Create(ctx, d)
			})
			require.NoError(t, err)

			var got *model.Device
			err = store.View(ctx, func(r Reader) error {
				var err error
				got, err = r.Devices().FindByID(ctx, d.ID)
				return err
			})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, d.Name, got.Name)
			assert.True(t, got.UseOverrides)
			assert.Equal(t, int64(2), got.Overrides.Settings.Version())
			assert.Equal(t, int64(2), got.ConfigVersion)
			assert.Nil(t, got.Overrides.Schedule)
			assert.True(t, d.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestStoreDeviceNotFound(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			err := store.View(ctx, func(r Reader) error {
				d, err := r.Devices().FindByID(ctx, "missing")
				assert.Nil(t, d)
				return err
			})
			require.NoError(t, err)
		})
	}
}

func TestStoreDeleteRetiresID(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			d := sampleDevice("0b1e2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d")

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				return tx.Devices().Create(ctx, d)
			}))

			var deleted bool
			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				var err error
				deleted, err = tx.Devices().Delete(ctx, d.ID, testNow)
				return err
			}))
			assert.True(t, deleted)

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				var err error
				deleted, err = tx.Devices().Delete(ctx, d.ID, testNow)
				return err
			}))
			assert.False(t, deleted, "second delete is a no-op")

			require.NoError(t, store.View(ctx, func(r Reader) error {
				retired, err := r.Devices().IsRetired(ctx, d.ID)
				assert.True(t, retired)
				return err
			}))
		})
	}
}

func TestStoreTouchLastSeen(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			d := sampleDevice("a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d")
			seen := testNow.Add(time.Minute)

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				return tx.Devices().Create(ctx, d)
			}))

			ok, err := store.TouchLastSeen(ctx, "00000000-0000-4000-8000-000000000000", seen)
			require.NoError(t, err)
			assert.False(t, ok, "unknown device")

			ok, err = store.TouchLastSeen(ctx, d.ID, seen)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.View(ctx, func(r Reader) error {
				got, err := r.Devices().FindByID(ctx, d.ID)
				require.NotNil(t, got)
				require.NotNil(t, got.LastSeenAt)
				assert.True(t, seen.Equal(*got.LastSeenAt))
				return err
			}))
		})
	}
}

func TestStoreUpdateKeepsLastSeen(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			d := sampleDevice("d1e2f3a4-b5c6-4d7e-8f90-a1b2c3d4e5f6")
			seen := testNow.Add(time.Minute)

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				return tx.Devices().Create(ctx, d)
			}))
			_, err := store.TouchLastSeen(ctx, d.ID, seen)
			require.NoError(t, err)

			// d still carries no LastSeenAt, as a copy read before the heartbeat would.
			d.Name = "Renamed"
			d.ConfigVersion = 1
			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				return tx.Devices().Update(ctx, d)
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				got, err := r.Devices().FindByID(ctx, d.ID)
				require.NotNil(t, got)
				assert.Equal(t, "Renamed", got.Name)
				assert.Equal(t, int64(1), got.ConfigVersion)
				require.NotNil(t, got.LastSeenAt)
				assert.True(t, seen.Equal(*got.LastSeenAt))
				return err
			}))
		})
	}
}

func TestStorePairingCodes(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				for i, code := range []string{"ABC234", "XYZ789", "QRS456"} {
					origin := "kiosk-1"
					if code == "QRS456" {
						origin = "kiosk-2"
					}
					_, err := tx.PairingCodes().Create(ctx, model.CreatePairingCodeParams{
						Code:       code,
						OriginHint: origin,
						CreatedAt:  testNow.Add(time.Duration(i) * time.Second),
					})
					if err != nil {
						return err
					}
				}
				return tx.PairingCodes().MarkClaimed(ctx, "ABC234", "dev-1", testNow.Add(time.Minute))
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				pc, err := r.PairingCodes().FindByCode(ctx, "ABC234")
				require.NoError(t, err)
				require.NotNil(t, pc)
				assert.True(t, pc.IsClaimed())
				assert.Equal(t, "dev-1", *pc.ClaimedDeviceID)

				unclaimed, err := r.PairingCodes().FindUnclaimedByOrigin(ctx, "kiosk-1")
				require.NoError(t, err)
				require.Len(t, unclaimed, 1)
				assert.Equal(t, "XYZ789", unclaimed[0].Code)

				all, err := r.PairingCodes().List(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 3)
				return nil
			}))

			err := store.WithLock(ctx, func(tx Tx) error {
				return tx.PairingCodes().MarkClaimed(ctx, "ABC234", "dev-2", testNow)
			})
			assert.Error(t, err, "claimed codes stay with their first device")

			require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
				n, err := tx.PairingCodes().DeleteByDeviceID(ctx, "dev-1")
				assert.Equal(t, int64(1), n)
				if err != nil {
					return err
				}
				n, err = tx.PairingCodes().DeleteByCodes(ctx, []string{"XYZ789", "NOPE22"})
				assert.Equal(t, int64(1), n)
				return err
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				all, err := r.PairingCodes().List(ctx)
				require.Len(t, all, 1)
				assert.Equal(t, "QRS456", all[0].Code)
				return err
			}))
		})
	}
}

func TestStoreDocuments(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			require.NoError(t, store.View(ctx, func(r Reader) error {
				doc, err := r.Documents().Get(ctx, model.DocumentSettings)
				assert.NotNil(t, doc)
				assert.Equal(t, int64(0), doc.Version())
				return err
			}))

			for v := 1; v <= 2; v++ {
				doc := model.Document{"version": v, "autoPlay": true}
				require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
					return tx.Documents().Put(ctx, model.DocumentSettings, doc, testNow)
				}))
			}

			require.NoError(t, store.View(ctx, func(r Reader) error {
				doc, err := r.Documents().Get(ctx, model.DocumentSettings)
				assert.Equal(t, int64(2), doc.Version())
				autoPlay, ok := doc.AutoPlay()
				assert.True(t, ok)
				assert.True(t, autoPlay)
				return err
			}))
		})
	}
}

func TestStoreRollbackOnError(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			boom := errors.New("boom")

			err := store.WithLock(ctx, func(tx Tx) error {
				if err := tx.Devices().Create(ctx, sampleDevice("dead0000-0000-4000-8000-000000000000")); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			require.NoError(t, store.View(ctx, func(r Reader) error {
				devices, err := r.Devices().List(ctx)
				assert.Empty(t, devices)
				return err
			}))
		})
	}
}

func TestMemoryStoreBusy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(50 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.WithLock(ctx, func(tx Tx) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	err := store.WithLock(ctx, func(tx Tx) error { return nil })
	assert.ErrorIs(t, err, ErrStoreBusy)

	close(release)
	wg.Wait()
	assert.NoError(t, store.WithLock(ctx, func(tx Tx) error { return nil }))
}

func TestMemoryStoreTouchWhileLocked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(50 * time.Millisecond)
	d := sampleDevice("beef0000-0000-4000-8000-000000000000")
	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		return tx.Devices().Create(ctx, d)
	}))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithLock(ctx, func(tx Tx) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	seen := testNow.Add(time.Minute)
	ok, err := store.TouchLastSeen(ctx, d.ID, seen)
	require.NoError(t, err)
	assert.True(t, ok)

	close(release)
	require.NoError(t, <-done)

	// An older heartbeat never moves the time back.
	_, err = store.TouchLastSeen(ctx, d.ID, testNow)
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(r Reader) error {
		got, err := r.Devices().List(ctx)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].LastSeenAt)
		assert.True(t, seen.Equal(*got[0].LastSeenAt))
		return err
	}))
}

func TestMemoryStoreForgetsDeletedDeviceHeartbeat(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Second)
	d := sampleDevice("feed0000-0000-4000-8000-000000000000")
	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		return tx.Devices().Create(ctx, d)
	}))
	_, err := store.TouchLastSeen(ctx, d.ID, testNow)
	require.NoError(t, err)

	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		_, err := tx.Devices().Delete(ctx, d.ID, testNow)
		return err
	}))
	assert.False(t, store.current.Load().seen.has(d.ID))
}

func TestMemoryStoreReadersSeeCommittedState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Second)
	d := sampleDevice("c0ffee00-0000-4000-8000-000000000000")

	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		if err := tx.Devices().Create(ctx, d); err != nil {
			return err
		}
		return store.View(ctx, func(r Reader) error {
			got, err := r.Devices().FindByID(ctx, d.ID)
			assert.Nil(t, got, "uncommitted device must not be visible")
			return err
		})
	}))
}

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	store, err := OpenFileStore(path, time.Second)
	require.NoError(t, err)

	d := sampleDevice("5eed0000-0000-4000-8000-000000000000")
	d.Overrides.Schedule = model.Document{"version": 4, "events": []any{}}
	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		if err := tx.Devices().Create(ctx, d); err != nil {
			return err
		}
		_, err := tx.PairingCodes().Create(ctx, model.CreatePairingCodeParams{Code: "HJK234", CreatedAt: testNow})
		return err
	}))

	reopened, err := OpenFileStore(path, time.Second)
	require.NoError(t, err)

	require.NoError(t, reopened.View(ctx, func(r Reader) error {
		got, err := r.Devices().FindByID(ctx, d.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(4), got.Overrides.Schedule.Version())

		pc, err := r.PairingCodes().FindByCode(ctx, "HJK234")
		assert.NotNil(t, pc)
		return err
	}))
}

func TestFileStoreTouchDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := OpenFileStore(path, time.Second)
	require.NoError(t, err)
	d := sampleDevice("5eed0001-0000-4000-8000-000000000000")
	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		return tx.Devices().Create(ctx, d)
	}))

	lastSeen := func() *time.Time {
		reopened, err := OpenFileStore(path, time.Second)
		require.NoError(t, err)
		var got *model.Device
		require.NoError(t, reopened.View(ctx, func(r Reader) error {
			var err error
			got, err = r.Devices().FindByID(ctx, d.ID)
			return err
		}))
		require.NotNil(t, got)
		return got.LastSeenAt
	}

	first := testNow.Add(time.Minute)
	_, err = store.TouchLastSeen(ctx, d.ID, first)
	require.NoError(t, err)
	require.NotNil(t, lastSeen(), "first heartbeat is written through")
	assert.True(t, first.Equal(*lastSeen()))

	second := testNow.Add(2 * time.Minute)
	_, err = store.TouchLastSeen(ctx, d.ID, second)
	require.NoError(t, err)
	assert.True(t, first.Equal(*lastSeen()), "later heartbeats wait for the next write")

	require.NoError(t, store.WithLock(ctx, func(tx Tx) error { return nil }))
	assert.True(t, second.Equal(*lastSeen()))
}

func TestSQLStoreIgnoresCorruptOverride(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)
	d := sampleDevice("badc0de0-0000-4000-8000-000000000000")

	require.NoError(t, store.WithLock(ctx, func(tx Tx) error {
		return tx.Devices().Create(ctx, d)
	}))
	_, err := store.db.ExecContext(ctx, `UPDATE devices SET override_settings = '{not json' WHERE id = ?`, d.ID)
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(r Reader) error {
		got, err := r.Devices().FindByID(ctx, d.ID)
		require.NotNil(t, got)
		assert.Nil(t, got.Overrides.Settings)
		return err
	}))
}
