package model

import (
	"time"
)

type Device struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	UseOverrides bool       `json:"useOverrides"`
	Overrides    Overrides  `json:"overrides"`
	// ConfigVersion counts changes to what the device renders apart from the
	// global documents: renames, mode switches, override saves and clears.
	// It never decreases, and saved override layers carry its value.
	ConfigVersion int64 `json:"configVersion"`
}

// Overrides holds the per-device partial documents. A nil document means
// that layer is absent.
type Overrides struct {
	Settings Document `json:"settings,omitempty"`
	Schedule Document `json:"schedule,omitempty"`
}

func (o Overrides) IsEmpty() bool {
	return o.Settings == nil && o.Schedule == nil
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	out := d
	if d.LastSeenAt != nil {
		seen := *d.LastSeenAt
		out.LastSeenAt = &seen
	}
	out.Overrides = Overrides{
		Settings: d.Overrides.Settings.Clone(),
		Schedule: d.Overrides.Schedule.Clone(),
	}
	return out
}

type SaveOverrideParams struct {
	Settings Document
	Schedule Document
}

type SaveOverrideResult struct {
	SettingsVersion *int64
	ScheduleVersion *int64
}

// DeviceWithStatus is a device as the admin listing shows it.
type DeviceWithStatus struct {
	Device
	Status DeviceStatus `json:"status"`
}
