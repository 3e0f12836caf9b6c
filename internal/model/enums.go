package model

import "time"

// PresetKey names a weekly or event schedule variant.
type PresetKey string

const (
	PresetSunday    PresetKey = "Sun"
	PresetMonday    PresetKey = "Mon"
	PresetTuesday   PresetKey = "Tue"
	PresetWednesday PresetKey = "Wed"
	PresetThursday  PresetKey = "Thu"
	PresetFriday    PresetKey = "Fri"
	PresetSaturday  PresetKey = "Sat"
	PresetEvent1    PresetKey = "Evt1"
	PresetEvent2    PresetKey = "Evt2"
)

var weekdayPresets = [7]PresetKey{
	PresetSunday, PresetMonday, PresetTuesday, PresetWednesday,
	PresetThursday, PresetFriday, PresetSaturday,
}

// WeekdayPreset maps a weekday to its fixed preset key.
func WeekdayPreset(day time.Weekday) PresetKey {
	return weekdayPresets[day]
}

// IsEvent reports whether k is one of the event-only presets.
func (k PresetKey) IsEvent() bool {
	return k == PresetEvent1 || k == PresetEvent2
}

// IsKnown reports whether k is a weekday or event preset.
func (k PresetKey) IsKnown() bool {
	if k.IsEvent() {
		return true
	}
	for _, p := range weekdayPresets {
		if p == k {
			return true
		}
	}
	return false
}

// OverrideMode is the wire form of Device.UseOverrides.
type OverrideMode string

const (
	OverrideModeGlobal OverrideMode = "global"
	OverrideModeDevice OverrideMode = "device"
)

var OverrideModes = []string{
	string(OverrideModeGlobal),
	string(OverrideModeDevice),
}

// DeviceStatus is the heartbeat classification of a device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)
