package heartbeat

import (
	"context"
	"sync"

	"github.com/saunafleet/fleet-server/internal/model"
)

// ring is a fixed-capacity FIFO of samples.
type ring struct {
	samples []model.HeartbeatSample
	next    int
	size    int
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]model.HeartbeatSample, capacity)}
}

func (r *ring) push(s model.HeartbeatSample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.size < len(r.samples) {
		r.size++
	}
}

// newest first
func (r *ring) list(limit int) []model.HeartbeatSample {
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.HeartbeatSample, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.samples)) % len(r.samples)
		out = append(out, r.samples[idx])
	}
	return out
}

type MemoryBuffer struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring
}

func NewMemoryBuffer(capacity int) *MemoryBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryBuffer{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

func (b *MemoryBuffer) Record(_ context.Context, deviceID string, sample model.HeartbeatSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[deviceID]
	if !ok {
		r = newRing(b.capacity)
		b.rings[deviceID] = r
	}
	r.push(sample)
	return nil
}

func (b *MemoryBuffer) Recent(_ context.Context, deviceID string, limit int) ([]model.HeartbeatSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[deviceID]
	if !ok {
		return []model.HeartbeatSample{}, nil
	}
	return r.list(limit), nil
}

func (b *MemoryBuffer) Forget(_ context.Context, deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.rings, deviceID)
	return nil
}
