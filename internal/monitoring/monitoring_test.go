package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls atomic.Int32
	fixed int
	err   error
}

func (c *countingReconciler) ReconcileCounters(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return c.fixed, c.err
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&countingReconciler{}, "every now and then")
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	rec := &countingReconciler{fixed: 3}
	s, err := NewScheduler(rec, "@every 1h")
	require.NoError(t, err)

	assert.Equal(t, 3, s.RunOnce())

	rec.err = errors.New("db down")
	assert.Equal(t, 0, s.RunOnce())
	assert.Equal(t, int32(2), rec.calls.Load())
}

func TestRunTicksUntilStopped(t *testing.T) {
	rec := &countingReconciler{}
	s, err := NewScheduler(rec, "@every 1s")
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		s.Run()
		close(finished)
	}()

	require.Eventually(t, func() bool { return rec.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStatsCollector(t *testing.T) {
	stats := NewStatsCollector().Collect()
	assert.Greater(t, stats.Goroutines, 0)
	assert.NotEmpty(t, stats.Uptime)
}
