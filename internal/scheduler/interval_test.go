package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingRunner records every target it is asked to clean
type recordingRunner struct {
	mu      sync.Mutex
	targets []string
	failOn  string
}

func (r *recordingRunner) RunClean(ctx context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	if target == r.failOn {
		return errors.New("could not unlink a: busy")
	}
	return nil
}

func (r *recordingRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewIntervalScheduler(t *testing.T) {
	runner := &recordingRunner{}

	tests := []struct {
		name    string
		config  Config
		runner  Runner
		wantErr bool
	}{
		{"valid", Config{Interval: time.Second, Targets: []string{"a"}}, runner, false},
		{"zero interval", Config{Interval: 0, Targets: []string{"a"}}, runner, true},
		{"no targets", Config{Interval: time.Second}, runner, true},
		{"nil runner", Config{Interval: time.Second, Targets: []string{"a"}}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewIntervalScheduler(tt.config, tt.runner)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIntervalScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Fatal("Scheduler is nil")
			}
		})
	}
}

func TestIntervalScheduler_RunsEveryTargetEachRound(t *testing.T) {
	runner := &recordingRunner{}
	s, err := NewIntervalScheduler(Config{
		Interval: 20 * time.Millisecond,
		Targets:  []string{"scratch:a", "/tmp/b"},
	}, runner)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	waitFor(t, func() bool { return s.Status().TotalRuns >= 2 })
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}

	calls := runner.calls()
	if len(calls) < 4 || len(calls)%2 != 0 {
		t.Fatalf("expected whole rounds of 2 targets, got %v", calls)
	}
	for i, target := range calls {
		want := []string{"scratch:a", "/tmp/b"}[i%2]
		if target != want {
			t.Errorf("call %d = %s, want %s", i, target, want)
		}
	}
	if s.Status().Running {
		t.Error("Scheduler should not be running after stop")
	}
}

func TestIntervalScheduler_RunImmediately(t *testing.T) {
	runner := &recordingRunner{}
	s, err := NewIntervalScheduler(Config{
		Interval:       time.Hour,
		Targets:        []string{"a"},
		RunImmediately: true,
	}, runner)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	waitFor(t, func() bool { return len(runner.calls()) == 1 })
	status := s.Status()
	if status.SuccessfulRuns != 1 {
		t.Errorf("expected 1 successful run, got %d", status.SuccessfulRuns)
	}
	if until := time.Until(status.NextRunTime); until < 59*time.Minute {
		t.Errorf("next run should be an interval away, got %v", until)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}
}

func TestIntervalScheduler_DoubleStart(t *testing.T) {
	s, err := NewIntervalScheduler(Config{Interval: time.Second, Targets: []string{"a"}}, &recordingRunner{})
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected error when starting already running scheduler")
	}
}

func TestIntervalScheduler_StopNotRunning(t *testing.T) {
	s, err := NewIntervalScheduler(Config{Interval: time.Second, Targets: []string{"a"}}, &recordingRunner{})
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	if err := s.Stop(); err == nil {
		t.Error("Expected error when stopping non-running scheduler")
	}
}

func TestIntervalScheduler_NoRestartAfterStop(t *testing.T) {
	s, err := NewIntervalScheduler(Config{Interval: time.Second, Targets: []string{"a"}}, &recordingRunner{})
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected error when restarting a stopped scheduler")
	}
}

func TestIntervalScheduler_ContextCancellation(t *testing.T) {
	s, err := NewIntervalScheduler(Config{Interval: time.Hour, Targets: []string{"a"}}, &recordingRunner{})
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler should stop when context is cancelled")
	}
	if s.Status().Running {
		t.Error("Scheduler should not be running after cancellation")
	}
}

func TestIntervalScheduler_ErrorHandling(t *testing.T) {
	runner := &recordingRunner{failOn: "bad"}
	s, err := NewIntervalScheduler(Config{
		Interval:       time.Hour,
		Targets:        []string{"bad", "good"},
		RunImmediately: true,
	}, runner)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	waitFor(t, func() bool { return s.Status().FailedRuns == 1 })
	status := s.Status()
	if status.LastError != "bad: could not unlink a: busy" {
		t.Errorf("unexpected last error %q", status.LastError)
	}
	if calls := runner.calls(); len(calls) != 2 || calls[1] != "good" {
		t.Errorf("a failing target must not skip the rest, got %v", calls)
	}

	s.Stop()
}
