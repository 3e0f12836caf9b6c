package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/model"
)

const gcRunTimeout = 30 * time.Second

// Collector runs one garbage-collection sweep.
type Collector interface {
	GarbageCollect(ctx context.Context, now time.Time) (*model.GarbageCollectResult, error)
}

// GCJob sweeps expired pairing codes and abandoned devices on a fixed
// interval. A zero interval leaves it idle; GC then runs only on demand.
type GCJob struct {
	collector Collector
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	stopped   chan struct{}
}

func NewGCJob(collector Collector, interval time.Duration) *GCJob {
	return &GCJob{
		collector: collector,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (j *GCJob) Enabled() bool {
	return j.interval > 0
}

func (j *GCJob) Start() {
	if !j.Enabled() {
		close(j.stopped)
		log.Info().Msg("gc job disabled")
		return
	}
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("gc job started")
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *GCJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("gc job stopped")
}

func (j *GCJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *GCJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), gcRunTimeout)
	defer cancel()

	res, err := j.collector.GarbageCollect(ctx, j.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to garbage collect")
		return
	}
	if res.DeletedDevices > 0 || res.DeletedPairings > 0 {
		log.Info().
			Int("devices", res.DeletedDevices).
			Int("pairings", res.DeletedPairings).
			Msg("garbage collected")
	}
}
