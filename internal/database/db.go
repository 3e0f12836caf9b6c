package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL driver backing the store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Connection pool settings
const (
	maxOpenConns       = 25
	maxIdleConns       = 5
	connMaxLifetime    = 5 * time.Minute
	sqliteMaxOpenConns = 4
)

// pgLockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
// This allows repositories to work with either a direct connection or a transaction.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// Ensure *sqlx.DB and *sqlx.Tx implement DBTX
var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
	dialect     Dialect
	lockTimeout time.Duration
}

// Connect opens a Postgres URL or a SQLite file path. lockTimeout bounds how
// long a writer waits for the store-wide lock.
func Connect(dialect Dialect, dsn string, lockTimeout time.Duration) (*DB, error) {
	switch dialect {
	case DialectPostgres:
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		return &DB{DB: db, dialect: dialect, lockTimeout: lockTimeout}, nil

	case DialectSQLite:
		db, err := sqlx.Connect("sqlite3", sqliteDSN(dsn, lockTimeout))
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(sqliteMaxOpenConns)
		db.SetConnMaxLifetime(time.Hour)
		return &DB{DB: db, dialect: dialect, lockTimeout: lockTimeout}, nil
	}

	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}

// See: https://github.com/mattn/go-sqlite3#connection-string
func sqliteDSN(path string, lockTimeout time.Duration) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		path, sep, lockTimeout.Milliseconds())
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTx executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	return db.withTx(ctx, nil, fn)
}

// WithRowTx runs fn in a write transaction whose lock waits are bounded by
// the configured lock timeout. It does not take the store-wide lock, so fn
// must keep to statements that are atomic on their own.
func (db *DB) WithRowTx(ctx context.Context, fn TxFunc) error {
	return db.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if db.dialect == DialectPostgres {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(tx)
	})
}

// WithLock runs fn in a transaction that first takes the store-wide write
// lock, so at most one writer is active at a time. Waiting longer than the
// configured lock timeout fails with an error matched by IsLockTimeout.
func (db *DB) WithLock(ctx context.Context, fn TxFunc) error {
	return db.WithRowTx(ctx, func(tx *sqlx.Tx) error {
		// The first statement is a write, so SQLite takes its RESERVED lock
		// here and honours _busy_timeout.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE store_lock SET acquired_at = ? WHERE id = 1`), time.Now().UTC()); err != nil {
			return fmt.Errorf("acquire store lock: %w", err)
		}

		return fn(tx)
	})
}

// WithReadTx runs fn against one consistent snapshot.
func (db *DB) WithReadTx(ctx context.Context, fn TxFunc) error {
	var opts *sql.TxOptions
	if db.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return db.withTx(ctx, opts, fn)
}

func (db *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// IsLockTimeout reports whether err comes from giving up on a lock wait.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgLockNotAvailable
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}
