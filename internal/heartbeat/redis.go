package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/model"
)

const (
	keyPrefix = "heartbeats:"
	// Samples of devices that stop reporting are dropped eventually.
	keyTTL = 7 * 24 * time.Hour
)

// RedisBuffer keeps samples in a capped Redis list per device so every
// server instance sees the same history.
type RedisBuffer struct {
	client   *redis.Client
	capacity int
}

func NewRedisBuffer(client *redis.Client, capacity int) *RedisBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RedisBuffer{client: client, capacity: capacity}
}

func Key(deviceID string) string {
	return keyPrefix + deviceID
}

func (b *RedisBuffer) Record(ctx context.Context, deviceID string, sample model.HeartbeatSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal heartbeat sample: %w", err)
	}

	key := Key(deviceID)
	pipe := b.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(b.capacity-1))
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record heartbeat sample: %w", err)
	}
	return nil
}

func (b *RedisBuffer) Recent(ctx context.Context, deviceID string, limit int) ([]model.HeartbeatSample, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := b.client.LRange(ctx, Key(deviceID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read heartbeat samples: %w", err)
	}

	samples := make([]model.HeartbeatSample, 0, len(raw))
	for _, item := range raw {
		var s model.HeartbeatSample
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			log.Warn().Err(err).Str("deviceId", deviceID).Msg("skipping malformed heartbeat sample")
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (b *RedisBuffer) Forget(ctx context.Context, deviceID string) error {
	if err := b.client.Del(ctx, Key(deviceID)).Err(); err != nil {
		return fmt.Errorf("forget heartbeat samples: %w", err)
	}
	return nil
}
