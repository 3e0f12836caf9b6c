// Package heartbeat classifies device liveness and keeps a short history of
// heartbeat samples per device for diagnostics.
package heartbeat

import (
	"context"
	"time"

	"github.com/saunafleet/fleet-server/internal/model"
)

// DefaultOfflineThreshold is how long a device may stay silent before it is
// reported offline.
const DefaultOfflineThreshold = 3 * time.Minute

// Classify reports a device offline when it has never been seen or its last
// heartbeat is older than threshold.
func Classify(lastSeenAt *time.Time, now time.Time, threshold time.Duration) model.DeviceStatus {
	if lastSeenAt == nil || now.Sub(*lastSeenAt) > threshold {
		return model.DeviceStatusOffline
	}
	return model.DeviceStatusOnline
}

// Buffer retains the most recent samples per device. Eviction is FIFO by
// capacity.
type Buffer interface {
	Record(ctx context.Context, deviceID string, sample model.HeartbeatSample) error
	// Recent returns up to limit samples, newest first. limit <= 0 returns all.
	Recent(ctx context.Context, deviceID string, limit int) ([]model.HeartbeatSample, error)
	Forget(ctx context.Context, deviceID string) error
}
