package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// IntervalScheduler runs every target once per interval using time.Ticker
type IntervalScheduler struct {
	config Config
	runner Runner

	mu          sync.RWMutex
	running     bool
	stopped     bool // a stopped scheduler cannot be restarted
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if len(config.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	config.Targets = append([]string(nil), config.Targets...)
	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	if s.config.RunImmediately {
		s.stats.nextRunTime = time.Now()
	} else {
		s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	}

	go s.run(ctx)
	return nil
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunImmediately {
		s.executeRound(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.executeRound(ctx)
		}
	}
}

// executeRound cleans every target once; a failing target does not skip the rest
func (s *IntervalScheduler) executeRound(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.stats.nextRunTime = s.stats.lastRunTime.Add(s.config.Interval)
	s.mu.Unlock()

	var lastErr error
	for _, target := range s.config.Targets {
		if ctx.Err() != nil {
			break
		}
		if err := s.runner.RunClean(ctx, target); err != nil {
			lastErr = fmt.Errorf("%s: %w", target, err)
		}
	}

	s.mu.Lock()
	if lastErr != nil {
		s.stats.failedRuns++
		s.stats.lastError = lastErr.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan
	return nil
}

// Done implements Scheduler
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}

var _ Scheduler = (*IntervalScheduler)(nil)
