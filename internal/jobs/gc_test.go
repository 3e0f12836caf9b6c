package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/saunafleet/fleet-server/internal/model"
)

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) GarbageCollect(ctx context.Context, now time.Time) (*model.GarbageCollectResult, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GarbageCollectResult), args.Error(1)
}

func TestGCJob_SweepsOnStart(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	collector := new(mockCollector)
	called := make(chan struct{}, 1)
	collector.On("GarbageCollect", mock.Anything, at).
		Return(&model.GarbageCollectResult{DeletedDevices: 1, DeletedPairings: 2}, nil).
		Run(func(mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		})

	job := NewGCJob(collector, time.Hour)
	job.now = func() time.Time { return at }
	job.Start()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("gc did not run")
	}
	job.Stop()

	collector.AssertCalled(t, "GarbageCollect", mock.Anything, at)
}

func TestGCJob_RepeatsOnInterval(t *testing.T) {
	collector := new(mockCollector)
	calls := make(chan struct{}, 10)
	collector.On("GarbageCollect", mock.Anything, mock.Anything).
		Return(&model.GarbageCollectResult{}, nil).
		Run(func(mock.Arguments) {
			select {
			case calls <- struct{}{}:
			default:
			}
		})

	job := NewGCJob(collector, 10*time.Millisecond)
	job.Start()

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not run", i+1)
		}
	}
	job.Stop()
}

func TestGCJob_ErrorKeepsRunning(t *testing.T) {
	collector := new(mockCollector)
	calls := make(chan struct{}, 10)
	collector.On("GarbageCollect", mock.Anything, mock.Anything).
		Return(nil, errors.New("store busy")).
		Run(func(mock.Arguments) {
			select {
			case calls <- struct{}{}:
			default:
			}
		})

	job := NewGCJob(collector, 10*time.Millisecond)
	job.Start()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not run", i+1)
		}
	}
	job.Stop()
}

func TestGCJob_Disabled(t *testing.T) {
	collector := new(mockCollector)

	job := NewGCJob(collector, 0)
	assert.False(t, job.Enabled())
	job.Start()
	job.Stop()

	collector.AssertNotCalled(t, "GarbageCollect", mock.Anything, mock.Anything)
}
