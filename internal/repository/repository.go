package repository

import (
	"context"
	"errors"
	"time"

	"github.com/saunafleet/fleet-server/internal/model"
)

// ErrStoreBusy is returned when the store-wide write lock could not be
// acquired within the lock timeout. The operation had no effect and may be
// retried.
var ErrStoreBusy = errors.New("store busy")

type DeviceReader interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
	List(ctx context.Context) ([]model.Device, error)
	// IsRetired reports whether id belonged to a purged device.
	IsRetired(ctx context.Context, id string) (bool, error)
}

type DeviceRepository interface {
	DeviceReader
	Create(ctx context.Context, device model.Device) error
	Update(ctx context.Context, device model.Device) error
	// Delete removes the device and retires its id for good.
	Delete(ctx context.Context, id string, at time.Time) (bool, error)
}

type PairingCodeReader interface {
	FindByCode(ctx context.Context, code string) (*model.PairingCode, error)
	// FindUnclaimedByOrigin returns unclaimed codes for originHint, newest first.
	FindUnclaimedByOrigin(ctx context.Context, originHint string) ([]model.PairingCode, error)
	List(ctx context.Context) ([]model.PairingCode, error)
}

type PairingCodeRepository interface {
	PairingCodeReader
	Create(ctx context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error)
	MarkClaimed(ctx context.Context, code string, deviceID string, at time.Time) error
	DeleteByCodes(ctx context.Context, codes []string) (int64, error)
	DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error)
}

type DocumentReader interface {
	// Get returns the stored document, or an empty document at version 0.
	Get(ctx context.Context, kind model.DocumentKind) (model.Document, error)
}

type DocumentRepository interface {
	DocumentReader
	// Put replaces the whole document.
	Put(ctx context.Context, kind model.DocumentKind, doc model.Document, at time.Time) error
}

// Reader sees one consistent snapshot of the store.
type Reader interface {
	Devices() DeviceReader
	PairingCodes() PairingCodeReader
	Documents() DocumentReader
}

// Tx is the write view handed out while the store lock is held.
type Tx interface {
	Devices() DeviceRepository
	PairingCodes() PairingCodeRepository
	Documents() DocumentRepository
}

// Store is the single shared resource behind every operation. Writes run
// under one store-wide lock and become visible all at once; reads never see
// a half-applied write.
type Store interface {
	View(ctx context.Context, fn func(r Reader) error) error
	// WithLock runs fn exclusively. If fn returns an error nothing it did is
	// kept. A lock wait longer than the configured timeout yields ErrStoreBusy.
	WithLock(ctx context.Context, fn func(tx Tx) error) error
	// TouchLastSeen records a heartbeat without taking the store-wide lock.
	// It reports false when the device does not exist.
	TouchLastSeen(ctx context.Context, id string, at time.Time) (bool, error)
	Close() error
}
