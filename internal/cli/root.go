// Package cli implements the treeclean and checksum-matrix commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ning0612/treeclean/internal/config"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
	"github.com/Ning0612/treeclean/internal/scheduler"
	"github.com/Ning0612/treeclean/internal/service"
)

// Version info populated from main
var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets build-time version information.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

// App holds what the commands share: output streams and the adapter factory
type App struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Factory service.AdapterFactory
}

// NewApp returns an App writing to the process streams
func NewApp() *App {
	return &App{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Factory: service.OpenAdapter,
	}
}

// flag name -> viper key
var cleanFlagKeys = map[string]string{
	"abort":        "clean.abort",
	"recursive":    "clean.recursive",
	"files":        "clean.files",
	"chmod":        "clean.chmod",
	"workers":      "clean.workers",
	"exclude":      "clean.exclude",
	"dry-run":      "clean.dry_run",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"journal":      "journal",
	"metrics-file": "metrics_file",
	"lock-dir":     "lock_dir",
}

// RootCommand builds the treeclean command tree
func (a *App) RootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "treeclean [flags] <target>",
		Short: "Remove everything below a directory",
		Long: `treeclean - Recursively empty a directory on local or remote storage.

The target is either a local path or <endpoint>:<path> for an endpoint
defined in the configuration file. A local path that does not exist yet
and contains a colon needs a ./ prefix. The target directory itself is
kept.`,
		Version:       fmt.Sprintf("%s (%s)", appVersion, appCommit),
		Args:          exactlyOneTarget,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.NewViper()
			for name, key := range cleanFlagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			every, err := cmd.Flags().GetDuration("every")
			if err != nil {
				return err
			}
			if every < 0 {
				return newUsageError(fmt.Errorf("--every must be positive, got %v", every))
			}
			return a.runClean(cmd.Context(), v, configPath, args[0], every)
		},
	}

	flags := cmd.Flags()
	flags.BoolP("abort", "x", false, "Stop at the first error")
	flags.BoolP("recursive", "r", false, "Accepted for compatibility; traversal is always recursive")
	flags.BoolP("files", "f", false, "Only remove files, keep the directory skeleton")
	flags.BoolP("chmod", "c", false, "Make non-writable directories writable before descending")
	flags.Int("workers", 1, "Run up to N storage operations concurrently")
	flags.StringSlice("exclude", nil, "Glob pattern of entries to keep (repeatable)")
	flags.Bool("dry-run", false, "Log what would be removed without removing it")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "auto", "Log format: auto, text, json")
	flags.String("journal", "", "Record every removal in this SQLite database")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	flags.String("lock-dir", "", "Directory holding per-target lock files")
	flags.Duration("every", 0, "Repeat the clean at this interval until interrupted")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search ./config.yaml, ./configs, user config dir)")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(err)
	})
	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)

	cmd.AddCommand(a.authCommand(&configPath))
	return cmd
}

func exactlyOneTarget(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return newUsageError(err)
	}
	return nil
}

// loadConfig reads the configuration and installs the process-wide logger.
// The returned function shuts the logger down.
func loadConfig(v *viper.Viper, path string) (*config.Config, func(), error) {
	cfg, err := config.LoadOrDefault(v, path)
	if err != nil {
		return nil, nil, newUsageError(err)
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, nil, err
	}
	return cfg, func() { _ = logger.Shutdown() }, nil
}

func (a *App) runClean(ctx context.Context, v *viper.Viper, configPath, target string, every time.Duration) error {
	cfg, shutdown, err := loadConfig(v, configPath)
	if err != nil {
		return err
	}
	defer shutdown()

	svc, err := service.NewCleanService(cfg, cfg.Clean,
		service.WithAdapterFactory(a.Factory),
		service.WithLogger(logger.Get()),
	)
	if err != nil {
		return newUsageError(err)
	}

	if every > 0 {
		return a.runPeriodic(ctx, svc, target, every)
	}

	report, err := svc.Run(ctx, target)
	if err != nil {
		if isConfigError(err) {
			return newUsageError(err)
		}
		return err
	}

	a.printSummary(report)
	return nil
}

func (a *App) printSummary(report *service.Report) {
	fmt.Fprintf(a.Stdout, "Removed %d files and %d directories\n",
		report.Result.FilesRemoved, report.Result.DirectoriesRemoved)
}

// runPeriodic cleans target now and then once per interval until ctx ends.
// Failed runs are reported and retried on the next tick.
func (a *App) runPeriodic(ctx context.Context, svc *service.CleanService, target string, every time.Duration) error {
	if _, err := service.ParseTarget(svc.Config(), target); err != nil {
		return newUsageError(err)
	}

	runner := scheduler.RunnerFunc(func(ctx context.Context, target string) error {
		report, err := svc.Run(ctx, target)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(a.Stderr, "Error: %v\n", err)
			}
			return err
		}
		a.printSummary(report)
		return nil
	})

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:       every,
		Targets:        []string{target},
		RunImmediately: true,
	}, runner)
	if err != nil {
		return newUsageError(err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-sched.Done()
	status := sched.Status()
	logger.Get().Info("scheduler stopped",
		"rounds", status.TotalRuns,
		"failed", status.FailedRuns,
		"last_error", status.LastError,
	)
	return nil
}

// Execute runs cmd with args and maps the outcome to an exit code
func Execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Error: %v\n", err)

	var uerr *usageError
	if !errors.As(err, &uerr) {
		return ExitFailure
	}
	if !isConfigError(err) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return ExitUsage
}

func isConfigError(err error) bool {
	return errors.Is(err, domain.ErrConfigNotFound) ||
		errors.Is(err, domain.ErrConfigInvalid) ||
		errors.Is(err, domain.ErrEndpointNotFound) ||
		errors.Is(err, domain.ErrTransportNotFound)
}
