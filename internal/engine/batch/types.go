package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rshade/gradebook/internal/export"
)

// Default run tuning.
const (
	// DefaultVerifyInterval is the delay between existence checks of a written file.
	DefaultVerifyInterval = 100 * time.Millisecond

	// DefaultVerifyAttempts bounds existence checks per file (about 5s in total).
	DefaultVerifyAttempts = 50

	// DefaultRenderInterval is the progress polling cadence.
	DefaultRenderInterval = 50 * time.Millisecond

	// DefaultShutdownTimeout bounds graceful pool termination.
	DefaultShutdownTimeout = 10 * time.Second
)

// Setup errors. These are the only errors Run returns.
var (
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	ErrEmptyOutputDir = errors.New("output directory cannot be empty")
	ErrInvalidTiming  = errors.New("run timing values cannot be negative")
	ErrNilExporter    = errors.New("exporter cannot be nil")
	ErrDuplicateItem  = errors.New("duplicate work item id")
	ErrEmptyItemID    = errors.New("work item id cannot be empty")
	ErrAlreadyRun     = errors.New("orchestrator has already run")
	ErrOutputDir      = errors.New("cannot prepare output directory")
)

// WorkItem is one unit of batch work: an identifier plus whatever the exporter needs.
type WorkItem[T any] struct {
	ID      string
	Payload T
}

// Exporter writes one payload in one concrete format. basePath has no extension;
// the returned path is what gets verified. Export may fail; the failure is confined
// to the job that called it.
type Exporter[T any] interface {
	Export(ctx context.Context, payload T, format export.Format, basePath string) (string, error)
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc[T any] func(ctx context.Context, payload T, format export.Format, basePath string) (string, error)

// Export calls f.
func (f ExporterFunc[T]) Export(ctx context.Context, payload T, format export.Format, basePath string) (string, error) {
	return f(ctx, payload, format, basePath)
}

// MetricsRecorder receives run metrics. Implementations must be safe for
// concurrent use.
type MetricsRecorder interface {
	ItemsSubmitted(n int)
	JobFinished(failed bool, d time.Duration)
	ActiveWorkers(n int)
}

// RunConfig controls a batch run. Zero tuning fields take the Default* values.
type RunConfig struct {
	Format          export.Format
	OutputDir       string
	Workers         int
	VerifyInterval  time.Duration
	VerifyAttempts  int
	RenderInterval  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultRunConfig returns a config writing every format with one worker per CPU.
func DefaultRunConfig(outputDir string) RunConfig {
	return RunConfig{
		Format:          export.FormatAll,
		OutputDir:       outputDir,
		Workers:         runtime.NumCPU(),
		VerifyInterval:  DefaultVerifyInterval,
		VerifyAttempts:  DefaultVerifyAttempts,
		RenderInterval:  DefaultRenderInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Validate reports the first problem with c.
func (c RunConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	if c.Format != export.FormatAll && !c.Format.IsConcrete() {
		return fmt.Errorf("%w: %q", export.ErrUnknownFormat, c.Format)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrEmptyOutputDir
	}
	if c.VerifyInterval < 0 || c.RenderInterval < 0 || c.ShutdownTimeout < 0 || c.VerifyAttempts < 0 {
		return ErrInvalidTiming
	}
	return nil
}

// EffectiveWorkers caps Workers at the available hardware parallelism.
func (c RunConfig) EffectiveWorkers() int {
	return min(c.Workers, runtime.NumCPU())
}

// StallTimeout is how long a run waits without any job finishing before it
// forces shutdown: the verification window of every format plus ShutdownTimeout.
func (c RunConfig) StallTimeout() time.Duration {
	verify := time.Duration(len(c.Format.Expand())*max(c.VerifyAttempts, 1)) * c.VerifyInterval
	return verify + c.ShutdownTimeout
}

func (c RunConfig) withDefaults() RunConfig {
	if c.VerifyInterval == 0 {
		c.VerifyInterval = DefaultVerifyInterval
	}
	if c.VerifyAttempts == 0 {
		c.VerifyAttempts = DefaultVerifyAttempts
	}
	if c.RenderInterval == 0 {
		c.RenderInterval = DefaultRenderInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// RunState is the batch-level lifecycle.
type RunState int32

// Run states, in order.
const (
	StateIdle RunState = iota
	StateRunning
	StateDrained
	StateShutDown
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDrained:
		return "drained"
	case StateShutDown:
		return "shut down"
	default:
		return "unknown"
	}
}
