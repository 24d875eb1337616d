package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iolloyd/netwatch/internal/logging"
)

// Scheduler drives a Cycle forever. The next tick is scheduled a fixed
// interval after the previous one finished, so ticks never overlap and slow
// ticks push later ones back.
type Scheduler struct {
	cycle    *Cycle
	tracker  Tracker
	interval time.Duration
	log      *logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewScheduler creates a scheduler that owns tracker
func NewScheduler(cycle *Cycle, tracker Tracker, interval time.Duration, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cycle:    cycle,
		tracker:  tracker,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Stop prevents any further tick. A tick already running completes. Calling
// Stop more than once is a no-op.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run ticks immediately and then every interval until Stop is called or ctx
// is cancelled, returning nil. Cancellation does not reach a running tick. A
// failed tick ends Run with its error; the caller is expected to treat it as
// fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	tickCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if s.stopped(ctx) {
			return nil
		}

		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if s.stopped(ctx) {
			return nil
		}

		if _, err := s.cycle.RunOnce(tickCtx, s.tracker); err != nil {
			return fmt.Errorf("observation cycle failed: %w", err)
		}

		timer.Reset(s.interval)
	}
}
