package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/treeclean/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. TREECLEAN_CLEAN_ABORT=true
const EnvPrefix = "TREECLEAN"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "treeclean"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".treeclean"))
	}

	return paths
}

// NewViper returns a viper instance carrying defaults and environment bindings.
// Callers may bind command-line flags to it before calling LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("clean.abort", false)
	v.SetDefault("clean.recursive", false)
	v.SetDefault("clean.files", false)
	v.SetDefault("clean.chmod", false)
	v.SetDefault("clean.workers", 1)
	v.SetDefault("clean.exclude", []string{})
	v.SetDefault("clean.dry_run", false)
	v.SetDefault("lock_dir", "")
	v.SetDefault("journal", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.outputs", []string{"stderr"})
	v.SetDefault("logging.file.max_size_mb", 10)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("matrix.output", "checksum.out")
	v.SetDefault("matrix.probe_name", "checksum.test")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml
func Load(path string) (*Config, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith reads the configuration into v and decodes it
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

// LoadOrDefault behaves like LoadWith but falls back to defaults (plus flags
// and environment) when no config file is found in the search paths.
// An explicitly named file must exist.
func LoadOrDefault(v *viper.Viper, path string) (*Config, error) {
	cfg, err := LoadWith(v, path)
	if errors.Is(err, domain.ErrConfigNotFound) && path == "" {
		return decode(v)
	}
	return cfg, err
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := NewViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.LockDir = ExpandPath(cfg.LockDir)
	cfg.Journal = ExpandPath(cfg.Journal)
	cfg.MetricsFile = ExpandPath(cfg.MetricsFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
