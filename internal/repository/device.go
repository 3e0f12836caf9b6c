package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/database"
	"github.com/saunafleet/fleet-server/internal/model"
)

const deviceColumns = `id, name, use_overrides, override_settings, override_schedule, config_version, created_at, updated_at, last_seen_at`

type deviceRow struct {
	ID               string     `db:"id"`
	Name             string     `db:"name"`
	UseOverrides     bool       `db:"use_overrides"`
	OverrideSettings *string    `db:"override_settings"`
	OverrideSchedule *string    `db:"override_schedule"`
	ConfigVersion    int64      `db:"config_version"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	LastSeenAt       *time.Time `db:"last_seen_at"`
}

// toModel decodes the override layers. A layer that no longer decodes is
// dropped so the device falls back to the global document instead of
// failing every read.
func (r deviceRow) toModel() model.Device {
	return model.Device{
		ID:           r.ID,
		Name:         r.Name,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastSeenAt:   r.LastSeenAt,
		UseOverrides: r.UseOverrides,
		Overrides: model.Overrides{
			Settings: decodeOverride(r.ID, "settings", r.OverrideSettings),
			Schedule: decodeOverride(r.ID, "schedule", r.OverrideSchedule),
		},
		ConfigVersion: r.ConfigVersion,
	}
}

func decodeOverride(deviceID, layer string, raw *string) model.Document {
	if raw == nil {
		return nil
	}
	doc, err := model.DecodeDocument([]byte(*raw))
	if err != nil {
		log.Warn().
			Err(err).
			Str("deviceId", deviceID).
			Str("layer", layer).
			Msg("ignoring unreadable device override")
		return nil
	}
	return doc
}

func encodeOverride(doc model.Document) (*string, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

type deviceRepo struct {
	db database.DBTX
}

func NewDeviceRepository(db database.DBTX) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	var row deviceRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT `+deviceColumns+` FROM devices WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := row.toModel()
	return &d, nil
}

func (r *deviceRepo) List(ctx context.Context) ([]model.Device, error) {
	var rows []deviceRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+deviceColumns+` FROM devices ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	devices := make([]model.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, row.toModel())
	}
	return devices, nil
}

func (r *deviceRepo) IsRetired(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM retired_device_ids WHERE id = ?
	`), id)
	return count > 0, err
}

func (r *deviceRepo) Create(ctx context.Context, device model.Device) error {
	settings, err := encodeOverride(device.Overrides.Settings)
	if err != nil {
		return err
	}
	schedule, err := encodeOverride(device.Overrides.Schedule)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), device.ID, device.Name, device.UseOverrides, settings, schedule, device.ConfigVersion,
		device.CreatedAt.UTC(), device.UpdatedAt.UTC(), utcPtr(device.LastSeenAt))
	return err
}

// Update writes everything but last_seen_at, which only TouchLastSeen sets.
func (r *deviceRepo) Update(ctx context.Context, device model.Device) error {
	settings, err := encodeOverride(device.Overrides.Settings)
	if err != nil {
		return err
	}
	schedule, err := encodeOverride(device.Overrides.Schedule)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE devices SET
			name = ?,
			use_overrides = ?,
			override_settings = ?,
			override_schedule = ?,
			config_version = ?,
			updated_at = ?
		WHERE id = ?
	`), device.Name, device.UseOverrides, settings, schedule, device.ConfigVersion,
		device.UpdatedAt.UTC(), device.ID)
	return err
}

func (r *deviceRepo) Delete(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM devices WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO retired_device_ids (id, retired_at) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`), id, at.UTC())
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *deviceRepo) TouchLastSeen(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE devices SET last_seen_at = ? WHERE id = ?
	`), at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
