package model

import "time"

// EffectiveConfig is what a display renders. It is derived on every request
// and never persisted.
type EffectiveConfig struct {
	Device       Device
	Settings     Document
	Schedule     Document
	Meta         EffectiveMeta
	ActivePreset PresetKey
	PresetSource string
	Now          time.Time
}

type EffectiveMeta struct {
	SettingsVersion     int64 `json:"settingsVersion"`
	ScheduleVersion     int64 `json:"scheduleVersion"`
	BaseSettingsVersion int64 `json:"baseSettingsVersion"`
	BaseScheduleVersion int64 `json:"baseScheduleVersion"`
	DeviceVersion       int64 `json:"deviceVersion"`
	OverridesActive     bool  `json:"overridesActive"`
}
