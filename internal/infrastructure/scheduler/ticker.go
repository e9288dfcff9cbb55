package scheduler

import (
	"context"
	"sync"
	"time"

	"maildigest/internal/ports"
)

// TickerScheduler runs a job at a fixed interval, optionally firing once
// immediately on start.
type TickerScheduler struct {
	interval    time.Duration
	immediately bool

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given cadence.
func NewTickerScheduler(interval time.Duration, immediately bool) *TickerScheduler {
	return &TickerScheduler{interval: interval, immediately: immediately}
}

// Start begins ticking in a background goroutine. Starting twice is a
// no-op until Stop. Safe for concurrent use with Stop.
func (s *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || s.interval <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		if s.immediately {
			job(time.Now())
		}
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the ticker goroutine. Stopping an idle scheduler is a no-op.
func (s *TickerScheduler) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}
