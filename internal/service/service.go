// Package service runs clean operations end to end: target resolution,
// locking, reporting and the cleaner itself.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/adapter/gdrive"
	"github.com/Ning0612/treeclean/internal/adapter/local"
	"github.com/Ning0612/treeclean/internal/config"
	"github.com/Ning0612/treeclean/internal/core/cleaner"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/journal"
	"github.com/Ning0612/treeclean/internal/lock"
	"github.com/Ning0612/treeclean/internal/logger"
	"github.com/Ning0612/treeclean/internal/metrics"
	"github.com/Ning0612/treeclean/internal/progress"
)

// AdapterFactory opens the storage behind an endpoint
type AdapterFactory func(ctx context.Context, endpoint domain.Endpoint, transport domain.Transport) (adapter.Adapter, error)

// OpenAdapter is the default AdapterFactory
func OpenAdapter(ctx context.Context, endpoint domain.Endpoint, transport domain.Transport) (adapter.Adapter, error) {
	switch transport.Type {
	case domain.TransportLocal:
		a, err := local.New(endpoint.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create local adapter for %s: %w", endpoint.Root, err)
		}
		return a, nil
	case domain.TransportGDrive:
		clientID := transport.Config["client_id"]
		clientSecret := transport.Config["client_secret"]
		tokenPath := config.ExpandPath(transport.Config["token_path"])

		if clientID == "" || clientSecret == "" {
			return nil, fmt.Errorf("%w: gdrive transport %s requires client_id and client_secret",
				domain.ErrConfigInvalid, transport.Name)
		}

		a, err := gdrive.New(ctx, clientID, clientSecret, tokenPath, endpoint.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create gdrive adapter for %s: %w", endpoint.Name, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport type: %s", domain.ErrConfigInvalid, transport.Type)
	}
}

// Report summarizes one run
type Report struct {
	RunID    string
	Target   Target
	Result   domain.CleanResult
	Counts   progress.Counts
	Duration time.Duration
}

// CleanService orchestrates clean runs
type CleanService struct {
	config    *config.Config
	policy    domain.Policy
	log       logger.Logger
	factory   AdapterFactory
	reporters []progress.Reporter
}

// Option configures a CleanService
type Option func(*CleanService)

// WithAdapterFactory replaces OpenAdapter
func WithAdapterFactory(f AdapterFactory) Option {
	return func(s *CleanService) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithReporter adds a reporter receiving every event of every run
func WithReporter(r progress.Reporter) Option {
	return func(s *CleanService) {
		if r != nil {
			s.reporters = append(s.reporters, r)
		}
	}
}

// WithLogger sets the base logger
func WithLogger(l logger.Logger) Option {
	return func(s *CleanService) {
		if l != nil {
			s.log = l
		}
	}
}

// NewCleanService creates a service running policy against targets from cfg
func NewCleanService(cfg *config.Config, policy domain.Policy, opts ...Option) (*CleanService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if policy.Workers < 0 {
		return nil, fmt.Errorf("%w: workers cannot be negative", domain.ErrConfigInvalid)
	}

	s := &CleanService{
		config:  cfg,
		policy:  policy,
		log:     logger.Get(),
		factory: OpenAdapter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the configuration targets are resolved against
func (s *CleanService) Config() *config.Config {
	return s.config
}

// Run cleans everything below rawTarget.
// The returned error is fatal for the run; per-entry failures in continue
// mode only show up in Report.Counts.
func (s *CleanService) Run(ctx context.Context, rawTarget string) (*Report, error) {
	target, err := ParseTarget(s.config, rawTarget)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString(), Target: target}
	log := s.log.With("run_id", report.RunID, "target", target.Raw)

	fileLock, err := lock.NewFileLock(s.config.LockDir, target.Key())
	if err != nil {
		return nil, err
	}
	if err := fileLock.Acquire(report.RunID); err != nil {
		return nil, err
	}
	defer func() {
		if err := fileLock.Release(); err != nil {
			log.Warn("failed to release lock", "error", err)
		}
	}()

	client, err := s.factory(ctx, target.Endpoint, target.Transport)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	counter := progress.NewCountingReporter()
	reporters := progress.MultiReporter{counter}
	reporters = append(reporters, s.reporters...)

	var collector *metrics.Collector
	if s.config.MetricsFile != "" {
		collector = metrics.New()
		reporters = append(reporters, collector)
	}

	var j *journal.Journal
	if s.config.Journal != "" {
		j, err = journal.Open(s.config.Journal)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		// CallbackReporter serializes concurrent sibling workers
		jr := journal.NewReporter(j, report.RunID, log)
		reporters = append(reporters, progress.NewCallbackReporter(jr.Report))
	}

	c := cleaner.New(client, s.policy,
		cleaner.WithLogger(log),
		cleaner.WithReporter(reporters),
	)

	log.Info("clean started",
		"abort", s.policy.AbortOnError,
		"files_only", s.policy.OnlyFiles,
		"chmod", s.policy.RepairPermissions,
		"workers", s.policy.Workers,
		"dry_run", s.policy.DryRun,
	)

	start := time.Now()
	result, runErr := c.Clean(ctx, target.Path)
	report.Duration = time.Since(start)
	report.Result = result
	report.Counts = counter.Counts()

	if collector != nil {
		collector.ObserveRun(start, runErr)
		if err := collector.WriteTextfile(s.config.MetricsFile); err != nil {
			log.Warn("failed to write metrics", "error", err)
		}
	}

	if j != nil {
		if err := j.SaveRun(runRecord(report, start, runErr)); err != nil {
			log.Warn("failed to record run", "error", err)
		}
	}

	if runErr != nil {
		log.Error("clean aborted", "error", runErr, "duration", report.Duration)
		return report, runErr
	}

	log.Info("clean finished",
		"files", result.FilesRemoved,
		"directories", result.DirectoriesRemoved,
		"failures", report.Counts.Failures,
		"duration", report.Duration,
	)
	return report, nil
}

func runRecord(report *Report, start time.Time, runErr error) journal.RunRecord {
	record := journal.RunRecord{
		RunID:              report.RunID,
		Target:             report.Target.Key(),
		StartTime:          start,
		EndTime:            start.Add(report.Duration),
		Status:             journal.StatusSuccess,
		FilesRemoved:       report.Result.FilesRemoved,
		DirectoriesRemoved: report.Result.DirectoriesRemoved,
		Failures:           report.Counts.Failures,
	}
	switch {
	case runErr != nil:
		record.Status = journal.StatusFailed
		record.Error = runErr.Error()
	case report.Counts.Failures > 0:
		record.Status = journal.StatusPartial
	}
	return record
}
