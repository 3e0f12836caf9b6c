package model

import (
	"time"
)

type PairingCode struct {
	Code            string     `db:"code" json:"code"`
	OriginHint      string     `db:"origin_hint" json:"originHint"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	ClaimedDeviceID *string    `db:"claimed_device_id" json:"claimedDeviceId,omitempty"`
	ClaimedAt       *time.Time `db:"claimed_at" json:"claimedAt,omitempty"`
}

func (c *PairingCode) IsClaimed() bool {
	return c.ClaimedDeviceID != nil
}

// IsExpired reports whether an unclaimed code is older than ttl at now.
// Claimed codes never expire.
func (c *PairingCode) IsExpired(now time.Time, ttl time.Duration) bool {
	return !c.IsClaimed() && now.Sub(c.CreatedAt) > ttl
}

// ExpiresAt is the last instant an unclaimed code is still valid.
func (c *PairingCode) ExpiresAt(ttl time.Duration) time.Time {
	return c.CreatedAt.Add(ttl)
}

type CreatePairingCodeParams struct {
	Code       string
	OriginHint string
	CreatedAt  time.Time
}

type PollResult struct {
	Exists   bool    `json:"exists"`
	Claimed  bool    `json:"claimed"`
	Expired  bool    `json:"expired"`
	DeviceID *string `json:"deviceId,omitempty"`
}

type GarbageCollectResult struct {
	DeletedDevices  int `json:"deletedDevices"`
	DeletedPairings int `json:"deletedPairings"`
}

// PairingCodeStatus is a stored code annotated for the admin listing.
type PairingCodeStatus struct {
	PairingCode
	ExpiresAt time.Time `json:"expiresAt"`
	Expired   bool      `json:"expired"`
}
