package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/merge"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/preset"
	"github.com/saunafleet/fleet-server/internal/repository"
)

// ResolveService computes the configuration a display renders.
type ResolveService struct {
	store    repository.Store
	location *time.Location
	now      func() time.Time
}

// NewResolveService resolves presets in loc, the facility time zone.
func NewResolveService(store repository.Store, loc *time.Location) *ResolveService {
	if loc == nil {
		loc = time.Local
	}
	return &ResolveService{store: store, location: loc, now: time.Now}
}

func (s *ResolveService) Resolve(ctx context.Context, deviceID string) (*model.EffectiveConfig, error) {
	id, err := validateDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	var (
		device             *model.Device
		settings, schedule model.Document
	)
	err = s.store.View(ctx, func(r repository.Reader) error {
		var err error
		if device, err = r.Devices().FindByID(ctx, id); err != nil || device == nil {
			return err
		}
		if settings, err = r.Documents().Get(ctx, model.DocumentSettings); err != nil {
			return err
		}
		schedule, err = r.Documents().Get(ctx, model.DocumentSchedule)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("deviceId", id).Msg("resolve: store read failed")
		return nil, storeError(err)
	}
	if device == nil {
		return nil, apperrors.DeviceNotFound(id)
	}

	now := s.now()
	cfg := Effective(*device, settings, schedule, now, s.location)
	return &cfg, nil
}

// Effective layers the device overrides over the base documents and picks
// the live preset. Each document's version is the override's when that
// override is in use and the base version otherwise. DeviceVersion changes
// whenever the device's own state does, so a mode switch between documents
// of equal version is still visible in the meta.
func Effective(device model.Device, baseSettings, baseSchedule model.Document, now time.Time, loc *time.Location) model.EffectiveConfig {
	if baseSettings == nil {
		baseSettings = model.Document{}
	}
	if baseSchedule == nil {
		baseSchedule = model.Document{}
	}

	settings, settingsVersion := layer(device, baseSettings, device.Overrides.Settings)
	schedule, scheduleVersion := layer(device, baseSchedule, device.Overrides.Schedule)

	res := preset.Resolve(schedule, settings, now, loc)

	return model.EffectiveConfig{
		Device:   device,
		Settings: settings,
		Schedule: schedule,
		Meta: model.EffectiveMeta{
			SettingsVersion:     settingsVersion,
			ScheduleVersion:     scheduleVersion,
			BaseSettingsVersion: baseSettings.Version(),
			BaseScheduleVersion: baseSchedule.Version(),
			DeviceVersion:       device.ConfigVersion,
			OverridesActive:     device.UseOverrides && !device.Overrides.IsEmpty(),
		},
		ActivePreset: res.Preset,
		PresetSource: string(res.Source),
		Now:          now,
	}
}

func layer(device model.Device, base, override model.Document) (model.Document, int64) {
	if !device.UseOverrides || override == nil {
		return base.Clone(), base.Version()
	}
	v := override.Version()
	return merge.Merge(base, override).WithVersion(v), v
}
