package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/audit"
	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/heartbeat"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/repository"
	"github.com/saunafleet/fleet-server/internal/util"
)

const (
	maxDeviceNameLength = 80
	maxIDAttempts       = 5
)

type DeviceService struct {
	store            repository.Store
	heartbeats       heartbeat.Buffer
	offlineThreshold time.Duration
	now              func() time.Time
}

func NewDeviceService(
	store repository.Store,
	heartbeats heartbeat.Buffer,
	offlineThreshold time.Duration,
) *DeviceService {
	if offlineThreshold <= 0 {
		offlineThreshold = heartbeat.DefaultOfflineThreshold
	}
	return &DeviceService{
		store:            store,
		heartbeats:       heartbeats,
		offlineThreshold: offlineThreshold,
		now:              time.Now,
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.MissingRequired("name")
	}
	if len([]rune(name)) > maxDeviceNameLength {
		return "", apperrors.InvalidInput("name", fmt.Sprintf("must be at most %d characters", maxDeviceNameLength))
	}
	return name, nil
}

func (s *DeviceService) Create(ctx context.Context, name string) (*model.Device, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	var device *model.Device
	err = s.store.WithLock(ctx, func(tx repository.Tx) error {
		device, err = createDevice(ctx, tx, name, s.now())
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	log.Info().Str("deviceId", device.ID).Str("name", device.Name).Msg("device created")
	return device, nil
}

// createDevice allocates a fresh id that is neither live nor retired. It must
// run inside the store lock.
func createDevice(ctx context.Context, tx repository.Tx, name string, now time.Time) (*model.Device, error) {
	devices := tx.Devices()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := uuid.NewString()

		existing, err := devices.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check device id: %w", err)
		}
		retired, err := devices.IsRetired(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check retired id: %w", err)
		}
		if existing != nil || retired {
			continue
		}

		device := model.Device{
			ID:        id,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := devices.Create(ctx, device); err != nil {
			return nil, fmt.Errorf("create device: %w", err)
		}
		return &device, nil
	}

	return nil, apperrors.Internal("could not allocate a device id")
}

func (s *DeviceService) Get(ctx context.Context, id string) (*model.DeviceWithStatus, error) {
	id, err := validateDeviceID(id)
	if err != nil {
		return nil, err
	}

	var device *model.Device
	err = s.store.View(ctx, func(r repository.Reader) error {
		device, err = r.Devices().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	if device == nil {
		return nil, apperrors.DeviceNotFound(id)
	}

	return &model.DeviceWithStatus{
		Device: *device,
		Status: heartbeat.Classify(device.LastSeenAt, s.now(), s.offlineThreshold),
	}, nil
}

func (s *DeviceService) List(ctx context.Context) ([]model.DeviceWithStatus, error) {
	var devices []model.Device
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		devices, err = r.Devices().List(ctx)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	now := s.now()
	out := make([]model.DeviceWithStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, model.DeviceWithStatus{
			Device: d,
			Status: heartbeat.Classify(d.LastSeenAt, now, s.offlineThreshold),
		})
	}
	return out, nil
}

// update loads the device under the store lock, bumps its config version,
// applies fn and writes it back. fn sees the new version.
func (s *DeviceService) update(ctx context.Context, id string, fn func(d *model.Device) error) error {
	return storeError(s.store.WithLock(ctx, func(tx repository.Tx) error {
		device, err := tx.Devices().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if device == nil {
			return apperrors.DeviceNotFound(id)
		}
		device.ConfigVersion = nextConfigVersion(*device)
		if err := fn(device); err != nil {
			return err
		}
		device.UpdatedAt = s.now()
		return tx.Devices().Update(ctx, *device)
	}))
}

func (s *DeviceService) Rename(ctx context.Context, id, name string) error {
	id, err := validateDeviceID(id)
	if err != nil {
		return err
	}
	name, err = normalizeName(name)
	if err != nil {
		return err
	}

	var previous string
	err = s.update(ctx, id, func(d *model.Device) error {
		previous = d.Name
		d.Name = name
		return nil
	})
	if err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventDeviceRename,
		DeviceID: id,
		Details:  map[string]interface{}{"from": previous, "to": name},
	})
	return nil
}

func (s *DeviceService) SetOverrideMode(ctx context.Context, id string, mode model.OverrideMode) error {
	id, err := validateDeviceID(id)
	if err != nil {
		return err
	}
	if mode == "" {
		return apperrors.MissingRequired("mode")
	}
	if !util.IsValidEnum(string(mode), model.OverrideModes) {
		return apperrors.InvalidInput("mode", `must be "global" or "device"`)
	}

	err = s.update(ctx, id, func(d *model.Device) error {
		d.UseOverrides = mode == model.OverrideModeDevice
		restampOverrides(d)
		return nil
	})
	if err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventModeChange,
		DeviceID: id,
		Details:  map[string]interface{}{"mode": string(mode)},
	})
	return nil
}

// SaveOverride stores the given override layers. Saved layers are stamped
// with the device's bumped config version; versions sent by the client are
// ignored.
func (s *DeviceService) SaveOverride(ctx context.Context, id string, params model.SaveOverrideParams) (*model.SaveOverrideResult, error) {
	id, err := validateDeviceID(id)
	if err != nil {
		return nil, err
	}
	if params.Settings == nil && params.Schedule == nil {
		return nil, apperrors.MissingRequired("settings")
	}

	result := &model.SaveOverrideResult{}
	err = s.update(ctx, id, func(d *model.Device) error {
		v := d.ConfigVersion
		if params.Settings != nil {
			d.Overrides.Settings = params.Settings.WithVersion(v)
			result.SettingsVersion = &v
		}
		if params.Schedule != nil {
			d.Overrides.Schedule = params.Schedule.WithVersion(v)
			result.ScheduleVersion = &v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{}
	if result.SettingsVersion != nil {
		details["settingsVersion"] = *result.SettingsVersion
	}
	if result.ScheduleVersion != nil {
		details["scheduleVersion"] = *result.ScheduleVersion
	}
	audit.Log(ctx, audit.Event{Type: audit.EventOverrideSave, DeviceID: id, Details: details})

	return result, nil
}

// nextConfigVersion is one above every version the device has issued,
// including the stamps on its stored override layers.
func nextConfigVersion(d model.Device) int64 {
	v := d.ConfigVersion
	for _, layer := range []model.Document{d.Overrides.Settings, d.Overrides.Schedule} {
		if layer != nil && layer.Version() > v {
			v = layer.Version()
		}
	}
	return v + 1
}

// restampOverrides moves the stored layers to the device's current config
// version so clients diffing document versions notice the change.
func restampOverrides(d *model.Device) {
	if d.Overrides.Settings != nil {
		d.Overrides.Settings = d.Overrides.Settings.WithVersion(d.ConfigVersion)
	}
	if d.Overrides.Schedule != nil {
		d.Overrides.Schedule = d.Overrides.Schedule.WithVersion(d.ConfigVersion)
	}
}

// Unpair with purge deletes the device, retires its id and drops its pairing
// codes and heartbeat history; removed reports whether a device was deleted.
// Without purge only the overrides are cleared.
func (s *DeviceService) Unpair(ctx context.Context, id string, purge bool) (removed bool, err error) {
	id, err = validateDeviceID(id)
	if err != nil {
		return false, err
	}

	if !purge {
		err = s.update(ctx, id, func(d *model.Device) error {
			d.UseOverrides = false
			d.Overrides = model.Overrides{}
			return nil
		})
		if err != nil {
			return false, err
		}
		audit.Log(ctx, audit.Event{Type: audit.EventDeviceUnpair, DeviceID: id})
		return false, nil
	}

	var codes int64
	err = s.store.WithLock(ctx, func(tx repository.Tx) error {
		var err error
		removed, err = tx.Devices().Delete(ctx, id, s.now())
		if err != nil || !removed {
			return err
		}
		codes, err = tx.PairingCodes().DeleteByDeviceID(ctx, id)
		return err
	})
	if err != nil {
		return false, storeError(err)
	}

	if removed {
		s.forgetHeartbeats(ctx, id)
		audit.Log(ctx, audit.Event{
			Type:     audit.EventDevicePurge,
			DeviceID: id,
			Details:  map[string]interface{}{"deletedPairings": codes},
		})
	}
	return removed, nil
}

func (s *DeviceService) forgetHeartbeats(ctx context.Context, id string) {
	if s.heartbeats == nil {
		return
	}
	if err := s.heartbeats.Forget(ctx, id); err != nil {
		log.Warn().Err(err).Str("deviceId", id).Msg("failed to drop heartbeat history")
	}
}

// Touch records a heartbeat. Heartbeats for unknown devices are ignored.
// It does not take the store-wide lock, so heartbeats keep flowing while an
// admin write or a GC sweep holds it.
func (s *DeviceService) Touch(ctx context.Context, id string, sample model.HeartbeatSample) error {
	id, err := validateDeviceID(id)
	if err != nil {
		return err
	}

	now := s.now()
	found, err := s.store.TouchLastSeen(ctx, id, now)
	if err != nil {
		return storeError(err)
	}
	if !found {
		log.Debug().Str("deviceId", id).Msg("heartbeat for unknown device ignored")
		return nil
	}

	if s.heartbeats != nil {
		sample.At = now
		if err := s.heartbeats.Record(ctx, id, sample); err != nil {
			log.Warn().Err(err).Str("deviceId", id).Msg("failed to record heartbeat sample")
		}
	}
	return nil
}

func (s *DeviceService) Heartbeats(ctx context.Context, id string, limit int) ([]model.HeartbeatSample, error) {
	device, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.heartbeats == nil {
		return []model.HeartbeatSample{}, nil
	}

	samples, err := s.heartbeats.Recent(ctx, device.ID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to read heartbeat samples", err)
	}
	if samples == nil {
		samples = []model.HeartbeatSample{}
	}
	return samples, nil
}
