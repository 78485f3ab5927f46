package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/gradebook/internal/export"
	"github.com/rshade/gradebook/internal/logging"
)

// outputDirPerm is used for the output directory and per-format subdirectories.
const outputDirPerm = 0750

// abandonedDetail is recorded for jobs still unfinished when the pool is forced down.
const abandonedDetail = "abandoned at shutdown"

// Orchestrator runs one batch: it owns the pool, the tracker and the render loop.
// An Orchestrator runs once.
type Orchestrator[T any] struct {
	items    []WorkItem[T]
	cfg      RunConfig
	exporter Exporter[T]

	out      io.Writer
	reporter *Reporter
	metrics  MetricsRecorder
	audit    logging.AuditLogger

	tracker atomic.Pointer[Tracker]
	pool    atomic.Pointer[Pool]
	state   atomic.Int32
	ran     atomic.Bool
}

// NewOrchestrator prepares a run over items. Nothing happens until Run.
func NewOrchestrator[T any](items []WorkItem[T], cfg RunConfig, exporter Exporter[T]) *Orchestrator[T] {
	return &Orchestrator[T]{
		items:    items,
		cfg:      cfg,
		exporter: exporter,
		out:      os.Stdout,
	}
}

// WithOutput sets where progress and the summary are written. Default os.Stdout.
func (o *Orchestrator[T]) WithOutput(w io.Writer) *Orchestrator[T] {
	o.out = w
	return o
}

// WithReporter replaces the reporter built from the output writer.
func (o *Orchestrator[T]) WithReporter(r *Reporter) *Orchestrator[T] {
	o.reporter = r
	return o
}

// WithMetrics attaches a metrics recorder.
func (o *Orchestrator[T]) WithMetrics(m MetricsRecorder) *Orchestrator[T] {
	o.metrics = m
	return o
}

// WithAuditLogger sets the audit sink. By default the one in the Run context is used.
func (o *Orchestrator[T]) WithAuditLogger(a logging.AuditLogger) *Orchestrator[T] {
	o.audit = a
	return o
}

// Tracker returns the run's tracker, or nil before Run has started jobs.
func (o *Orchestrator[T]) Tracker() *Tracker {
	return o.tracker.Load()
}

// State returns the batch lifecycle state.
func (o *Orchestrator[T]) State() RunState {
	return RunState(o.state.Load())
}

// ActiveWorkers returns the best-effort count of busy workers, 0 outside a run.
func (o *Orchestrator[T]) ActiveWorkers() int {
	if p := o.pool.Load(); p != nil {
		return p.Active()
	}
	return 0
}

// Run executes the batch and blocks until every item is terminal and the pool is
// shut down. Only setup problems are returned as errors; per-item failures are in
// the returned Summary and in Tracker().
func (o *Orchestrator[T]) Run(ctx context.Context) (*Summary, error) {
	if !o.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	cfg := o.cfg.withDefaults()
	tracker, err := o.setup(cfg)
	if err != nil {
		return nil, err
	}

	traceID := logging.GetOrGenerateTraceID(ctx)
	log := logging.ComponentLogger(*logging.FromContext(ctx), "batch").
		With().Str("trace_id", traceID).Logger()

	audit := o.audit
	if audit == nil {
		audit = logging.AuditLoggerFromContext(ctx)
	}
	reporter := o.reporter
	if reporter == nil {
		reporter = NewReporter(o.out)
	}

	workers := cfg.EffectiveWorkers()
	if workers < cfg.Workers {
		log.Info().Int("requested", cfg.Workers).Int("workers", workers).
			Msg("worker count capped at available CPUs")
	}

	// Jobs are not cancelled mid-run; only a forced shutdown cancels the pool context.
	pool := NewPool(context.WithoutCancel(ctx), workers, len(o.items), log)
	o.tracker.Store(tracker)
	o.pool.Store(pool)
	o.state.Store(int32(StateRunning))

	log.Info().
		Int("items", len(o.items)).
		Int("workers", workers).
		Str("format", string(cfg.Format)).
		Str("output_dir", cfg.OutputDir).
		Msg("batch run started")

	o.submitAll(cfg, tracker, pool, audit, log, traceID)

	if !o.renderUntilDrained(cfg, tracker, pool, reporter) {
		log.Warn().
			Dur("stall_timeout", cfg.StallTimeout()).
			Int("completed", tracker.Completed()).
			Int("total", tracker.Total()).
			Msg("no report job finished within the stall timeout, shutting down")
	}

	// Every job is terminal here unless the loop gave up; a stuck exporter keeps
	// its worker busy and turns this into a forced shutdown.
	shutdownErr := pool.Shutdown(cfg.ShutdownTimeout)
	if shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("worker pool shutdown was forced")
	}
	o.abandon(cfg, tracker, audit, log, traceID)
	o.state.Store(int32(StateDrained))

	wall := time.Since(tracker.StartTime())
	reporter.RenderFinal(tracker.Snapshot(time.Now()), pool.Active())
	reporter.RenderBanner(tracker.Snapshot(time.Now()))
	summary := buildSummary(tracker, cfg, workers, traceID, wall)
	summary.ForcedShutdown = shutdownErr != nil
	reporter.RenderSummary(summary)
	o.state.Store(int32(StateShutDown))
	if o.metrics != nil {
		o.metrics.ActiveWorkers(0)
	}

	counts := tracker.StatusCounts()
	log.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("pending", counts[StatusPending]).
		Int("in_progress", counts[StatusInProgress]).
		Dur("wall_time", summary.WallTime).
		Int64("output_bytes", summary.OutputBytes).
		Msg("batch run finished")

	return summary, nil
}

// setup validates everything and prepares the output tree. Nothing has been
// submitted when it fails.
func (o *Orchestrator[T]) setup(cfg RunConfig) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	if o.exporter == nil {
		return nil, ErrNilExporter
	}

	ids := make([]string, len(o.items))
	for i, item := range o.items {
		ids[i] = item.ID
	}
	tracker, err := NewTracker(ids)
	if err != nil {
		return nil, fmt.Errorf("invalid work items: %w", err)
	}

	if err = prepareOutputDirs(cfg); err != nil {
		return nil, err
	}
	return tracker, nil
}

func prepareOutputDirs(cfg RunConfig) error {
	dirs := []string{cfg.OutputDir}
	if cfg.Format == export.FormatAll {
		for _, f := range export.Formats() {
			dirs = append(dirs, filepath.Join(cfg.OutputDir, string(f)))
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, outputDirPerm); err != nil {
			return fmt.Errorf("%w %s: %w", ErrOutputDir, dir, err)
		}
	}
	return nil
}

func (o *Orchestrator[T]) submitAll(
	cfg RunConfig,
	tracker *Tracker,
	pool *Pool,
	audit logging.AuditLogger,
	log zerolog.Logger,
	traceID string,
) {
	for _, item := range o.items {
		t := &task[T]{
			item:     item,
			cfg:      cfg,
			exporter: o.exporter,
			tracker:  tracker,
			audit:    audit,
			metrics:  o.metrics,
			logger:   log,
			traceID:  traceID,
		}
		if err := pool.Submit(t.run); err != nil {
			// Cannot happen on a fresh pool, but the item must still end terminal.
			o.failUnsubmitted(tracker, item.ID, err)
			log.Error().Err(err).Str("item_id", item.ID).Msg("could not submit report job")
			continue
		}
		tracker.MarkSubmitted()
	}
	if o.metrics != nil {
		o.metrics.ItemsSubmitted(tracker.Submitted())
	}
}

func (o *Orchestrator[T]) failUnsubmitted(tracker *Tracker, id string, cause error) {
	now := time.Now()
	if err := tracker.Start(id, "", now); err != nil {
		return
	}
	detail := fmt.Sprintf("not submitted: %v", cause)
	if errors.Is(cause, ErrPoolClosed) {
		detail = "not submitted: pool closed"
	}
	_, _ = tracker.Finish(id, true, detail, nil, now)
}

// renderUntilDrained polls and renders until every item is terminal. It returns
// false when no job has finished for cfg.StallTimeout().
func (o *Orchestrator[T]) renderUntilDrained(cfg RunConfig, tracker *Tracker, pool *Pool, reporter *Reporter) bool {
	stall := cfg.StallTimeout()
	lastDone := tracker.Completed()
	lastProgress := time.Now()

	for !tracker.IsDrained() {
		now := time.Now()
		active := pool.Active()
		reporter.RenderProgress(tracker.Snapshot(now), active)
		if o.metrics != nil {
			o.metrics.ActiveWorkers(active)
		}

		if done := tracker.Completed(); done != lastDone {
			lastDone, lastProgress = done, now
		} else if now.Sub(lastProgress) >= stall {
			return false
		}
		time.Sleep(cfg.RenderInterval)
	}
	return true
}

// abandon fails every job left unfinished after a forced shutdown and reports
// each one to the audit and metrics sinks like a regular failure.
func (o *Orchestrator[T]) abandon(
	cfg RunConfig,
	tracker *Tracker,
	audit logging.AuditLogger,
	log zerolog.Logger,
	traceID string,
) {
	ids := tracker.Abandon(abandonedDetail, time.Now())
	if len(ids) == 0 {
		return
	}
	log.Warn().Strs("item_ids", ids).Msg("report jobs abandoned at shutdown")

	ctx := context.Background()
	for _, id := range ids {
		rec, _ := tracker.Record(id)
		entry := logging.NewAuditEntry(auditOperation, traceID).
			WithParameters(map[string]string{
				"item_id": id,
				"format":  string(cfg.Format),
				"worker":  rec.Worker,
			}).
			WithDurationMS(rec.Duration.Milliseconds()).
			WithError(abandonedDetail)
		audit.Log(ctx, *entry)
		if o.metrics != nil {
			o.metrics.JobFinished(true, rec.Duration)
		}
	}
}
