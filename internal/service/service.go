package service

import (
	"errors"
	"strings"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/repository"
	"github.com/saunafleet/fleet-server/internal/util"
)

// storeError turns a failed store call into the error the caller sees.
// AppErrors raised inside a locked section pass through unchanged.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, repository.ErrStoreBusy) {
		return apperrors.StorageBusy(err)
	}
	return apperrors.StorageFailure(err)
}

// validateDeviceID checks presence and format of a device id.
func validateDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.MissingDevice()
	}
	if !util.IsValidUUID(id) {
		return "", apperrors.InvalidDeviceFormat(id)
	}
	return id, nil
}
