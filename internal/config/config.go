package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
)

// Config represents the complete configuration for treeclean
type Config struct {
	// Transports define storage backend configurations
	Transports []domain.Transport `mapstructure:"transports"`

	// Endpoints define specific locations within transports
	Endpoints []domain.Endpoint `mapstructure:"endpoints"`

	// Clean holds the default policy; command-line flags override it
	Clean domain.Policy `mapstructure:"clean"`

	// Logging configures log level, format and outputs
	Logging LoggingConfig `mapstructure:"logging"`

	// LockDir holds per-target lock files (empty = user config dir)
	LockDir string `mapstructure:"lock_dir"`

	// Journal is the SQLite removal journal path (empty = disabled)
	Journal string `mapstructure:"journal"`

	// MetricsFile receives a Prometheus textfile after each run (empty = disabled)
	MetricsFile string `mapstructure:"metrics_file"`

	// Matrix configures the checksum-matrix harness
	Matrix MatrixConfig `mapstructure:"matrix"`
}

// LoggingConfig is the on-disk form of logger.Config
type LoggingConfig struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`
	Outputs []string `mapstructure:"outputs"`
	File    struct {
		Path       string `mapstructure:"path"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		MaxBackups int    `mapstructure:"max_backups"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"file"`
}

// MatrixConfig configures the checksum-matrix harness
type MatrixConfig struct {
	// Algorithms to probe, in report column order
	Algorithms []string `mapstructure:"algorithms"`

	// Endpoints to probe (empty = every configured endpoint)
	Endpoints []string `mapstructure:"endpoints"`

	// Output is the report file
	Output string `mapstructure:"output"`

	// ProbeName is the file created in each endpoint root
	ProbeName string `mapstructure:"probe_name"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	transportNames := make(map[string]bool)
	for _, t := range c.Transports {
		if t.Name == "" {
			return fmt.Errorf("%w: transport name cannot be empty", domain.ErrConfigInvalid)
		}
		if transportNames[t.Name] {
			return fmt.Errorf("%w: duplicate transport name: %s", domain.ErrConfigInvalid, t.Name)
		}
		if !t.Type.IsValid() {
			return fmt.Errorf("%w: invalid transport type: %s", domain.ErrConfigInvalid, t.Type)
		}
		transportNames[t.Name] = true
	}

	endpointNames := make(map[string]bool)
	for _, e := range c.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("%w: endpoint name cannot be empty", domain.ErrConfigInvalid)
		}
		if strings.ContainsAny(e.Name, ":/\\") {
			return fmt.Errorf("%w: endpoint name %q must not contain ':' or path separators", domain.ErrConfigInvalid, e.Name)
		}
		if endpointNames[e.Name] {
			return fmt.Errorf("%w: duplicate endpoint name: %s", domain.ErrConfigInvalid, e.Name)
		}
		if e.Transport == "" {
			return fmt.Errorf("%w: endpoint %s has no transport", domain.ErrConfigInvalid, e.Name)
		}
		if !transportNames[e.Transport] {
			return fmt.Errorf("%w: endpoint %s references unknown transport: %s",
				domain.ErrTransportNotFound, e.Name, e.Transport)
		}
		endpointNames[e.Name] = true
	}

	if c.Clean.Workers < 0 {
		return fmt.Errorf("%w: clean.workers cannot be negative", domain.ErrConfigInvalid)
	}

	for _, out := range c.Logging.Outputs {
		if _, ok := logger.ParseOutput(out); !ok {
			return fmt.Errorf("%w: unknown log output: %s", domain.ErrConfigInvalid, out)
		}
	}

	for _, a := range c.Matrix.Algorithms {
		if _, err := checksum.ParseAlgorithm(a); err != nil {
			return fmt.Errorf("%w: matrix: %v", domain.ErrConfigInvalid, err)
		}
	}
	for _, name := range c.Matrix.Endpoints {
		if !endpointNames[name] {
			return fmt.Errorf("%w: matrix references unknown endpoint: %s", domain.ErrEndpointNotFound, name)
		}
	}

	return nil
}

// GetTransport returns a transport by name
func (c *Config) GetTransport(name string) (*domain.Transport, error) {
	for i := range c.Transports {
		if c.Transports[i].Name == name {
			return &c.Transports[i], nil
		}
	}
	return nil, domain.ErrTransportNotFound
}

// GetEndpoint returns an endpoint by name
func (c *Config) GetEndpoint(name string) (*domain.Endpoint, error) {
	for i := range c.Endpoints {
		if c.Endpoints[i].Name == name {
			return &c.Endpoints[i], nil
		}
	}
	return nil, domain.ErrEndpointNotFound
}

// MatrixAlgorithms returns the parsed harness algorithms (all when unset)
func (c *Config) MatrixAlgorithms() []checksum.Algorithm {
	if len(c.Matrix.Algorithms) == 0 {
		return checksum.All()
	}
	algos := make([]checksum.Algorithm, 0, len(c.Matrix.Algorithms))
	for _, a := range c.Matrix.Algorithms {
		if algo, err := checksum.ParseAlgorithm(a); err == nil {
			algos = append(algos, algo)
		}
	}
	return algos
}

// MatrixEndpoints returns the endpoints probed by the harness
func (c *Config) MatrixEndpoints() []domain.Endpoint {
	if len(c.Matrix.Endpoints) == 0 {
		return c.Endpoints
	}
	var result []domain.Endpoint
	for _, name := range c.Matrix.Endpoints {
		if e, err := c.GetEndpoint(name); err == nil {
			result = append(result, *e)
		}
	}
	return result
}

// LoggerConfig converts the logging section into a logger.Config
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:  logger.ParseLevel(c.Logging.Level),
		Format: logger.ParseFormat(c.Logging.Format),
		File: logger.FileConfig{
			Path:       ExpandPath(c.Logging.File.Path),
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			MaxBackups: c.Logging.File.MaxBackups,
			Compress:   c.Logging.File.Compress,
		},
	}
	for _, out := range c.Logging.Outputs {
		typ, ok := logger.ParseOutput(out)
		if !ok {
			continue
		}
		if typ == logger.OutputFile {
			cfg.File.Enabled = c.Logging.File.Path != ""
		}
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: typ})
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []logger.OutputConfig{{Type: logger.OutputStderr}}
	}
	return cfg
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
