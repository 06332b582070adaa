package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Reconciler recomputes denormalized counters.
type Reconciler interface {
	ReconcileCounters(ctx context.Context) (int, error)
}

// Scheduler periodically repairs post counters on a cron schedule.
type Scheduler struct {
	store    Reconciler
	schedule cron.Schedule
	timeout  time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler parses spec (standard cron syntax or descriptors such as "@every 1h").
func NewScheduler(store Reconciler, spec string) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	return &Scheduler{
		store:    store,
		schedule: schedule,
		timeout:  5 * time.Minute,
		done:     make(chan struct{}),
	}, nil
}

// Run starts the scheduler's loop. It runs once immediately and returns after Stop.
func (s *Scheduler) Run() {
	log.Info().Msg("Starting counter reconciliation scheduler")
	s.RunOnce()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.done:
			timer.Stop()
			log.Info().Msg("Stopping counter reconciliation scheduler")
			return
		case <-timer.C:
			s.RunOnce()
		}
	}
}

// RunOnce reconciles counters now and returns how many posts were repaired.
func (s *Scheduler) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	fixed, err := s.store.ReconcileCounters(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Counter reconciliation failed")
		return 0
	}
	metrics.CountersReconciled.Add(float64(fixed))

	event := log.Debug()
	if fixed > 0 {
		event = log.Warn()
	}
	event.Int("fixed", fixed).Dur("took", time.Since(start)).Msg("Counter reconciliation finished")
	return fixed
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
