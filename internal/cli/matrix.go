package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ning0612/treeclean/internal/config"
	"github.com/Ning0612/treeclean/internal/core/matrix"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
)

// MatrixCommand builds the checksum-matrix command
func (a *App) MatrixCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "checksum-matrix [flags] [endpoint...]",
		Short: "Probe which checksum algorithms each endpoint supports",
		Long: `checksum-matrix writes a probe file into every endpoint root, asks for
its checksum with each algorithm and writes a wiki table of the results.

Endpoints default to matrix.endpoints from the configuration, or every
configured endpoint.`,
		Version:       fmt.Sprintf("%s (%s)", appVersion, appCommit),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.NewViper()
			for name, key := range map[string]string{
				"output":     "matrix.output",
				"algorithms": "matrix.algorithms",
				"probe-name": "matrix.probe_name",
				"log-level":  "logging.level",
				"log-format": "logging.format",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			if len(args) > 0 {
				v.Set("matrix.endpoints", args)
			}
			return a.runMatrix(cmd.Context(), v, configPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Config file (default: search ./config.yaml, ./configs, user config dir)")
	flags.StringP("output", "o", "checksum.out", "Report file")
	flags.StringSlice("algorithms", nil, "Algorithms to probe, in column order (default: all)")
	flags.String("probe-name", matrix.DefaultProbeName, "Name of the probe file")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "auto", "Log format: auto, text, json")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(err)
	})
	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)
	return cmd
}

func (a *App) runMatrix(ctx context.Context, v *viper.Viper, configPath string) error {
	cfg, shutdown, err := loadConfig(v, configPath)
	if err != nil {
		return err
	}
	defer shutdown()

	storages, err := a.openStorages(ctx, cfg)
	defer closeStorages(storages)
	if err != nil {
		return err
	}

	harness := matrix.New(cfg.MatrixAlgorithms(), cfg.Matrix.ProbeName, logger.Get())
	results, err := harness.Run(ctx, storages)
	if err != nil {
		return err
	}

	names := make([]string, len(storages))
	for i, s := range storages {
		names[i] = s.Name
	}
	if err := matrix.WriteFile(cfg.Matrix.Output, names, harness.Algorithms(), results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Fprintf(a.Stdout, "Checksum matrix for %d endpoints written to %s\n", len(storages), cfg.Matrix.Output)
	return nil
}

// openStorages opens every probed endpoint; opened clients are returned
// even on error so the caller can close them
func (a *App) openStorages(ctx context.Context, cfg *config.Config) ([]matrix.Storage, error) {
	endpoints := cfg.MatrixEndpoints()
	if len(endpoints) == 0 {
		return nil, newUsageError(fmt.Errorf("%w: no endpoints to probe", domain.ErrConfigInvalid))
	}

	storages := make([]matrix.Storage, 0, len(endpoints))
	for _, endpoint := range endpoints {
		transport, err := cfg.GetTransport(endpoint.Transport)
		if err != nil {
			return storages, newUsageError(err)
		}
		client, err := a.Factory(ctx, endpoint, *transport)
		if err != nil {
			return storages, fmt.Errorf("fatal for %s: %w", endpoint.Name, err)
		}
		storages = append(storages, matrix.Storage{Name: endpoint.Name, Client: client})
	}
	return storages, nil
}

func closeStorages(storages []matrix.Storage) {
	for _, s := range storages {
		if err := s.Client.Close(); err != nil {
			logger.Get().Warn("failed to close storage", "storage", s.Name, "error", err)
		}
	}
}
