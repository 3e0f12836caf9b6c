package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/saunafleet/fleet-server/internal/database"
)

// SQLStore runs the repositories on Postgres or SQLite.
type SQLStore struct {
	db *database.DB
}

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) View(ctx context.Context, fn func(r Reader) error) error {
	return s.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		return fn(sqlReader{tx: tx})
	})
}

func (s *SQLStore) WithLock(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithLock(ctx, func(tx *sqlx.Tx) error {
		return fn(sqlTx{tx: tx})
	})
	if err != nil && database.IsLockTimeout(err) {
		return fmt.Errorf("%w: %v", ErrStoreBusy, err)
	}
	return err
}

// TouchLastSeen updates one row. It waits only on that row, never on the
// store-wide lock.
func (s *SQLStore) TouchLastSeen(ctx context.Context, id string, at time.Time) (bool, error) {
	var found bool
	err := s.db.WithRowTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		found, err = (&deviceRepo{db: tx}).TouchLastSeen(ctx, id, at)
		return err
	})
	if err != nil && database.IsLockTimeout(err) {
		return false, fmt.Errorf("%w: %v", ErrStoreBusy, err)
	}
	return found, err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlReader struct {
	tx *sqlx.Tx
}

func (r sqlReader) Devices() DeviceReader           { return NewDeviceRepository(r.tx) }
func (r sqlReader) PairingCodes() PairingCodeReader { return NewPairingCodeRepository(r.tx) }
func (r sqlReader) Documents() DocumentReader       { return NewDocumentRepository(r.tx) }

type sqlTx struct {
	tx *sqlx.Tx
}

func (t sqlTx) Devices() DeviceRepository           { return NewDeviceRepository(t.tx) }
func (t sqlTx) PairingCodes() PairingCodeRepository { return NewPairingCodeRepository(t.tx) }
func (t sqlTx) Documents() DocumentRepository       { return NewDocumentRepository(t.tx) }

var (
	_ Store  = (*SQLStore)(nil)
	_ Store  = (*MemoryStore)(nil)
	_ Reader = sqlReader{}
	_ Tx     = sqlTx{}
)
