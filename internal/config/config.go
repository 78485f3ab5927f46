// Package config loads gradebook settings from defaults, the user config file,
// an optional project overlay and GRADEBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rshade/gradebook/internal/engine/batch"
	"github.com/rshade/gradebook/internal/export"
	"github.com/rshade/gradebook/internal/logging"
)

const configFileName = "config.yaml"

// Environment variables that override file settings.
const (
	EnvHome       = "GRADEBOOK_HOME"
	EnvProjectDir = "GRADEBOOK_PROJECT_DIR"
	EnvFormat     = "GRADEBOOK_FORMAT"
	EnvOutputDir  = "GRADEBOOK_OUTPUT_DIR"
	EnvWorkers    = "GRADEBOOK_WORKERS"
	EnvLogLevel   = "GRADEBOOK_LOG_LEVEL"
	EnvLogFormat  = "GRADEBOOK_LOG_FORMAT"
)

// Config is the full gradebook configuration.
type Config struct {
	Report  ReportConfig  `yaml:"report"`
	Logging LoggingConfig `yaml:"logging"`

	configPath string
}

// ReportConfig tunes batch report runs. Durations are whole units so the file
// stays easy to edit by hand.
type ReportConfig struct {
	Format                 string `yaml:"format"`
	OutputDir              string `yaml:"output_dir"`
	Workers                int    `yaml:"workers"`
	VerifyIntervalMS       int    `yaml:"verify_interval_ms"`
	VerifyAttempts         int    `yaml:"verify_attempts"`
	RenderIntervalMS       int    `yaml:"render_interval_ms"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	MetricsFile            string `yaml:"metrics_file,omitempty"`
}

// LoggingConfig controls diagnostic and audit logging.
type LoggingConfig struct {
	Level  string      `yaml:"level"`
	Format string      `yaml:"format"`
	File   string      `yaml:"file,omitempty"`
	Caller bool        `yaml:"caller,omitempty"`
	Audit  AuditConfig `yaml:"audit"`
}

// AuditConfig enables the per-job audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file,omitempty"`
}

// Validation errors.
var (
	ErrInvalidWorkers  = errors.New("report.workers must be at least 1")
	ErrEmptyOutputDir  = errors.New("report.output_dir cannot be empty")
	ErrNegativeTiming  = errors.New("report timing values cannot be negative")
	ErrInvalidLogLevel = errors.New("invalid logging.level")
	ErrInvalidLogFmt   = errors.New("invalid logging.format")
	ErrAuditFile       = errors.New("logging.audit.file is required when audit is enabled")
)

// Defaults returns the built-in configuration, with no file or environment applied.
func Defaults() *Config {
	return &Config{
		Report: ReportConfig{
			Format:                 string(export.FormatAll),
			OutputDir:              "reports",
			Workers:                runtime.NumCPU(),
			VerifyIntervalMS:       int(batch.DefaultVerifyInterval / time.Millisecond),
			VerifyAttempts:         batch.DefaultVerifyAttempts,
			RenderIntervalMS:       int(batch.DefaultRenderInterval / time.Millisecond),
			ShutdownTimeoutSeconds: int(batch.DefaultShutdownTimeout / time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// New returns the effective configuration: defaults, then the user config file if
// it exists, then environment overrides. A broken config file is reported on
// stderr and skipped; use Load to get the error instead.
func New() *Config {
	cfg := Defaults()

	dir, err := GetConfigDir()
	if err != nil {
		cfg.applyEnv()
		return cfg
	}
	cfg.configPath = filepath.Join(dir, configFileName)

	if _, statErr := os.Stat(cfg.configPath); statErr == nil {
		if loadErr := cfg.loadFile(cfg.configPath); loadErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: ignoring config file: %v\n", loadErr)
			path := cfg.configPath
			cfg = Defaults()
			cfg.configPath = path
		}
	}

	cfg.applyEnv()
	return cfg
}

// Load reads path on top of the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	cfg.configPath = path
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyEnv applies GRADEBOOK_* overrides. Values that do not parse are ignored.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFormat); v != "" {
		c.Report.Format = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.Report.OutputDir = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Report.Workers = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
}

// ConfigPath returns the file this config was loaded from or will be saved to.
func (c *Config) ConfigPath() string { return c.configPath }

// SetConfigPath changes where Save writes.
func (c *Config) SetConfigPath(path string) { c.configPath = path }

// Save writes the config as YAML to ConfigPath, creating its directory.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err = os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", c.configPath, err)
	}
	return nil
}

// Validate checks every section and joins all problems found.
func (c *Config) Validate() error {
	var errs []error

	if _, err := export.ParseFormat(c.Report.Format); err != nil {
		errs = append(errs, fmt.Errorf("report.format: %w", err))
	}
	if c.Report.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Report.Workers))
	}
	if strings.TrimSpace(c.Report.OutputDir) == "" {
		errs = append(errs, ErrEmptyOutputDir)
	}
	if c.Report.VerifyIntervalMS < 0 || c.Report.VerifyAttempts < 0 ||
		c.Report.RenderIntervalMS < 0 || c.Report.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, ErrNegativeTiming)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("%w: %q (want %s or %s)",
			ErrInvalidLogFmt, c.Logging.Format, logging.FormatJSON, logging.FormatConsole))
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.File == "" {
		errs = append(errs, ErrAuditFile)
	}

	return errors.Join(errs...)
}

// RunConfig converts the report section into a batch run configuration.
func (c *Config) RunConfig() (batch.RunConfig, error) {
	format, err := export.ParseFormat(c.Report.Format)
	if err != nil {
		return batch.RunConfig{}, err
	}
	return batch.RunConfig{
		Format:          format,
		OutputDir:       c.Report.OutputDir,
		Workers:         c.Report.Workers,
		VerifyInterval:  time.Duration(c.Report.VerifyIntervalMS) * time.Millisecond,
		VerifyAttempts:  c.Report.VerifyAttempts,
		RenderInterval:  time.Duration(c.Report.RenderIntervalMS) * time.Millisecond,
		ShutdownTimeout: time.Duration(c.Report.ShutdownTimeoutSeconds) * time.Second,
	}, nil
}
