package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Store ping timeout for startup and health checks
const StorePingTimeout = 5 * time.Second

// Pairing rate limit window
const PairingRateLimitWindow = time.Minute

// Upper bound for GET /v1/devices/{id}/heartbeats?limit=
const MaxHeartbeatSamples = 500

// Edge length in pixels of pairing QR images.
const PairingQRImageSize = 512
