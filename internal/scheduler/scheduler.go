// Package scheduler repeats clean runs at a fixed interval.
package scheduler

import (
	"context"
	"time"
)

// Scheduler defines the interface for periodic cleaners
type Scheduler interface {
	// Start begins the scheduling loop and returns immediately
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler, waiting for a run in progress
	Stop() error

	// Done is closed once the loop has exited
	Done() <-chan struct{}

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval between the starts of two rounds
	Interval time.Duration

	// Targets cleaned in order each round
	Targets []string

	// RunImmediately starts the first round without waiting an interval
	RunImmediately bool
}

// Runner executes one clean run
type Runner interface {
	RunClean(ctx context.Context, target string) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, target string) error

// RunClean implements Runner
func (f RunnerFunc) RunClean(ctx context.Context, target string) error {
	return f(ctx, target)
}
