package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	use_overrides     BOOLEAN NOT NULL DEFAULT FALSE,
	override_settings JSONB,
	override_schedule JSONB,
	config_version    BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	last_seen_at      TIMESTAMPTZ
);

ALTER TABLE devices ADD COLUMN IF NOT EXISTS config_version BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS retired_device_ids (
	id         TEXT PRIMARY KEY,
	retired_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pairing_codes (
	code              TEXT PRIMARY KEY,
	origin_hint       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	claimed_device_id TEXT,
	claimed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pairing_codes_origin
	ON pairing_codes (origin_hint) WHERE claimed_device_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_pairing_codes_device
	ON pairing_codes (claimed_device_id);

CREATE TABLE IF NOT EXISTS documents (
	kind       TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS store_lock (
	id          INTEGER PRIMARY KEY,
	acquired_at TIMESTAMPTZ
);

INSERT INTO store_lock (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	use_overrides     BOOLEAN NOT NULL DEFAULT 0,
	override_settings TEXT,
	override_schedule TEXT,
	config_version    INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL,
	last_seen_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS retired_device_ids (
	id         TEXT PRIMARY KEY,
	retired_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pairing_codes (
	code              TEXT PRIMARY KEY,
	origin_hint       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL,
	claimed_device_id TEXT,
	claimed_at        TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pairing_codes_origin
	ON pairing_codes (origin_hint) WHERE claimed_device_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_pairing_codes_device
	ON pairing_codes (claimed_device_id);

CREATE TABLE IF NOT EXISTS documents (
	kind       TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS store_lock (
	id          INTEGER PRIMARY KEY,
	acquired_at TIMESTAMP
);

INSERT INTO store_lock (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

// Migrate creates the schema if it does not exist yet. It is idempotent and
// applies all or nothing.
func (db *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if db.dialect == DialectSQLite {
		schema = sqliteSchema
	}

	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		if db.dialect == DialectSQLite {
			// SQLite has no ADD COLUMN IF NOT EXISTS.
			return addSQLiteColumn(ctx, tx, "devices", "config_version", "INTEGER NOT NULL DEFAULT 0")
		}
		return nil
	})
}

func addSQLiteColumn(ctx context.Context, tx *sqlx.Tx, table, column, decl string) error {
	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}
