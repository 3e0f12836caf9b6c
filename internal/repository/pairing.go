package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/saunafleet/fleet-server/internal/database"
	"github.com/saunafleet/fleet-server/internal/model"
)

const pairingCodeColumns = `code, origin_hint, created_at, claimed_device_id, claimed_at`

type pairingCodeRepo struct {
	db database.DBTX
}

func NewPairingCodeRepository(db database.DBTX) PairingCodeRepository {
	return &pairingCodeRepo{db: db}
}

func (r *pairingCodeRepo) FindByCode(ctx context.Context, code string) (*model.PairingCode, error) {
	var pc model.PairingCode
	err := r.db.GetContext(ctx, &pc, r.db.Rebind(`
		SELECT `+pairingCodeColumns+` FROM pairing_codes WHERE code = ?
	`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *pairingCodeRepo) FindUnclaimedByOrigin(ctx context.Context, originHint string) ([]model.PairingCode, error) {
	var codes []model.PairingCode
	err := r.db.SelectContext(ctx, &codes, r.db.Rebind(`
		SELECT `+pairingCodeColumns+` FROM pairing_codes
		WHERE origin_hint = ? AND claimed_device_id IS NULL
		ORDER BY created_at DESC
	`), originHint)
	return codes, err
}

func (r *pairingCodeRepo) List(ctx context.Context) ([]model.PairingCode, error) {
	var codes []model.PairingCode
	err := r.db.SelectContext(ctx, &codes, `
		SELECT `+pairingCodeColumns+` FROM pairing_codes
		ORDER BY created_at DESC
	`)
	return codes, err
}

func (r *pairingCodeRepo) Create(ctx context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error) {
	pc := model.PairingCode{
		Code:       params.Code,
		OriginHint: params.OriginHint,
		CreatedAt:  params.CreatedAt.UTC(),
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO pairing_codes (code, origin_hint, created_at)
		VALUES (?, ?, ?)
	`), pc.Code, pc.OriginHint, pc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *pairingCodeRepo) MarkClaimed(ctx context.Context, code string, deviceID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE pairing_codes SET
			claimed_device_id = ?,
			claimed_at = ?
		WHERE code = ? AND claimed_device_id IS NULL
	`), deviceID, at.UTC(), code)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pairing code %s missing or already claimed", code)
	}
	return nil
}

func (r *pairingCodeRepo) DeleteByCodes(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM pairing_codes WHERE code IN (?)`, codes)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *pairingCodeRepo) DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM pairing_codes WHERE claimed_device_id = ?
	`), deviceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
