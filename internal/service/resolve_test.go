package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/model"
)

func seedDocuments(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	_, err := f.documents.WriteSettings(ctx, model.Document{
		"theme":  map[string]any{"accent": "#fff", "bg": "#eee"},
		"saunas": []any{"A", "B"},
		"events": []any{},
	})
	require.NoError(t, err)
	_, err = f.documents.WriteSchedule(ctx, model.Document{
		"autoPlay": true,
		"presets":  map[string]any{"Wed": []any{"Aufguss 18:00"}},
	})
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("global configuration without overrides", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")

		cfg, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, cfg.Device.ID)
		assert.Equal(t, model.EffectiveMeta{
			SettingsVersion:     1,
			ScheduleVersion:     1,
			BaseSettingsVersion: 1,
			BaseScheduleVersion: 1,
		}, cfg.Meta)
		assert.Equal(t, model.PresetWednesday, cfg.ActivePreset)
		assert.Equal(t, "autoplay", cfg.PresetSource)
		assert.True(t, cfg.Now.Equal(t0))
	})

	t.Run("overrides are ignored in global mode", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")
		_, err := f.devices.SaveOverride(ctx, id, model.SaveOverrideParams{
			Settings: model.Document{"theme": map[string]any{"accent": "#000"}},
		})
		require.NoError(t, err)

		cfg, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)
		assert.False(t, cfg.Meta.OverridesActive)
		assert.Equal(t, "#fff", cfg.Settings["theme"].(map[string]any)["accent"])
	})

	t.Run("device mode merges overrides and takes their versions", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")
		require.NoError(t, f.devices.SetOverrideMode(ctx, id, model.OverrideModeDevice))
		for i := 0; i < 3; i++ {
			_, err := f.devices.SaveOverride(ctx, id, model.SaveOverrideParams{
				Settings: model.Document{
					"theme":  map[string]any{"accent": "#000"},
					"saunas": []any{"C"},
				},
			})
			require.NoError(t, err)
		}

		cfg, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)

		theme := cfg.Settings["theme"].(map[string]any)
		assert.Equal(t, "#000", theme["accent"])
		assert.Equal(t, "#eee", theme["bg"])
		assert.Equal(t, []any{"C"}, cfg.Settings["saunas"])

		assert.True(t, cfg.Meta.OverridesActive)
		assert.Equal(t, int64(4), cfg.Meta.SettingsVersion)
		assert.Equal(t, int64(4), cfg.Settings.Version())
		assert.Equal(t, int64(4), cfg.Meta.DeviceVersion)
		assert.Equal(t, int64(1), cfg.Meta.BaseSettingsVersion)
		assert.Equal(t, int64(1), cfg.Meta.ScheduleVersion, "no schedule override keeps the base version")
		assert.Equal(t, int64(1), cfg.Schedule.Version())
	})

	t.Run("switching mode changes the reported versions", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")
		_, err := f.devices.SaveOverride(ctx, id, model.SaveOverrideParams{
			Settings: model.Document{"theme": map[string]any{"accent": "#000"}},
		})
		require.NoError(t, err)

		before, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)
		assert.False(t, before.Meta.OverridesActive)
		assert.Equal(t, int64(1), before.Meta.SettingsVersion)
		assert.Equal(t, int64(1), before.Meta.DeviceVersion)

		require.NoError(t, f.devices.SetOverrideMode(ctx, id, model.OverrideModeDevice))

		after, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)
		assert.True(t, after.Meta.OverridesActive)
		assert.Equal(t, int64(2), after.Meta.SettingsVersion, "restamped layer differs from the base version")
		assert.Equal(t, int64(2), after.Meta.DeviceVersion)
		assert.Equal(t, "#000", after.Settings["theme"].(map[string]any)["accent"])
	})

	t.Run("active event in the merged settings wins", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")
		require.NoError(t, f.devices.SetOverrideMode(ctx, id, model.OverrideModeDevice))
		_, err := f.devices.SaveOverride(ctx, id, model.SaveOverrideParams{
			Settings: model.Document{"events": []any{map[string]any{
				"id":             "ladies-night",
				"assignedPreset": "Evt1",
				"startDateTime":  "2026-03-04T09:00",
				"isActive":       true,
			}}},
		})
		require.NoError(t, err)

		cfg, err := f.resolve.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.PresetEvent1, cfg.ActivePreset)
		assert.Equal(t, "event", cfg.PresetSource)
	})

	t.Run("base documents are not modified", func(t *testing.T) {
		f := newFixture(t)
		seedDocuments(t, f)
		id := f.pairDevice(t, "x")
		require.NoError(t, f.devices.SetOverrideMode(ctx, id, model.OverrideModeDevice))
		_, err := f.devices.SaveOverride(ctx, id, model.SaveOverrideParams{
			Settings: model.Document{"theme": map[string]any{"accent": "#000"}},
		})
		require.NoError(t, err)

		_, err = f.resolve.Resolve(ctx, id)
		require.NoError(t, err)

		base, err := f.documents.ReadSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "#fff", base["theme"].(map[string]any)["accent"])
	})

	t.Run("errors", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.resolve.Resolve(ctx, "")
		assert.Equal(t, apperrors.ErrCodeMissingDevice, apperrors.GetCode(err))
		_, err = f.resolve.Resolve(ctx, "nope")
		assert.Equal(t, apperrors.ErrCodeInvalidDeviceFormat, apperrors.GetCode(err))
		_, err = f.resolve.Resolve(ctx, "7f9c2ba4-e88f-4d7b-a6a1-3c2d5f1e0b11")
		assert.Equal(t, apperrors.ErrCodeDeviceNotFound, apperrors.GetCode(err))
	})
}

func TestEffectiveWithEmptyStore(t *testing.T) {
	device := model.Device{ID: "d", UseOverrides: true}
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) // Saturday

	cfg := Effective(device, nil, nil, now, time.UTC)
	assert.Equal(t, model.PresetSaturday, cfg.ActivePreset)
	assert.False(t, cfg.Meta.OverridesActive)
	assert.Equal(t, int64(0), cfg.Meta.SettingsVersion)
	assert.NotNil(t, cfg.Settings)
}

func TestEffectiveVersionsNeverMix(t *testing.T) {
	device := model.Device{
		ID:           "d",
		UseOverrides: true,
		Overrides: model.Overrides{
			Schedule: model.Document{"version": json.Number("7"), "autoPlay": false, "activePreset": "Mon"},
		},
	}
	settings := model.Document{"version": json.Number("3")}
	schedule := model.Document{"version": json.Number("9"), "autoPlay": true}

	cfg := Effective(device, settings, schedule, t0, time.UTC)
	assert.Equal(t, int64(3), cfg.Meta.SettingsVersion)
	assert.Equal(t, int64(7), cfg.Meta.ScheduleVersion)
	assert.Equal(t, int64(9), cfg.Meta.BaseScheduleVersion)
	assert.Equal(t, model.PresetMonday, cfg.ActivePreset)
}
