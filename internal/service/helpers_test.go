package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saunafleet/fleet-server/internal/heartbeat"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/repository"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// clock is a settable time source shared by the services under test.
type clock struct {
	now time.Time
}

func newClock(at time.Time) *clock { return &clock{now: at} }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store     *repository.MemoryStore
	buffer    *heartbeat.MemoryBuffer
	clock     *clock
	devices   *DeviceService
	pairing   *PairingService
	resolve   *ResolveService
	documents *DocumentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(time.Second)
	buffer := heartbeat.NewMemoryBuffer(5)
	c := newClock(t0)

	devices := NewDeviceService(store, buffer, 3*time.Minute)
	devices.now = c.Now
	pairing := NewPairingService(store, devices, 900*time.Second, 24*time.Hour)
	pairing.now = c.Now
	resolve := NewResolveService(store, time.UTC)
	resolve.now = c.Now
	documents := NewDocumentService(store)
	documents.now = c.Now

	return &fixture{
		store:     store,
		buffer:    buffer,
		clock:     c,
		devices:   devices,
		pairing:   pairing,
		resolve:   resolve,
		documents: documents,
	}
}

// pairDevice runs the request/claim flow and returns the new device id.
func (f *fixture) pairDevice(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	pc, err := f.pairing.RequestCode(ctx, "")
	require.NoError(t, err)
	id, err := f.pairing.Claim(ctx, pc.Code, name)
	require.NoError(t, err)
	return id
}

func (f *fixture) device(t *testing.T, id string) *model.DeviceWithStatus {
	t.Helper()
	d, err := f.devices.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}
