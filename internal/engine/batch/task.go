package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/gradebook/internal/export"
	"github.com/rshade/gradebook/internal/logging"
)

// auditOperation names the audit event emitted per job.
const auditOperation = "report.export"

// ErrJobPanicked wraps a panic raised by an exporter.
var ErrJobPanicked = errors.New("report job panicked")

// task produces the report(s) for one item. It never returns an error: every
// outcome ends up in the tracker.
type task[T any] struct {
	item     WorkItem[T]
	cfg      RunConfig
	exporter Exporter[T]
	tracker  *Tracker
	audit    logging.AuditLogger
	metrics  MetricsRecorder
	logger   zerolog.Logger
	traceID  string
}

func (t *task[T]) run(ctx context.Context, workerID int) {
	worker := "worker-" + strconv.Itoa(workerID)
	start := time.Now()

	if err := t.tracker.Start(t.item.ID, worker, start); err != nil {
		t.logger.Error().Err(err).Str("item_id", t.item.ID).Msg("job could not start")
		return
	}

	paths, jobErr := t.execute(ctx)

	detail := fmt.Sprintf("wrote %d file(s)", len(paths))
	if jobErr != nil {
		detail = jobErr.Error()
	}
	failed := jobErr != nil

	d, err := t.tracker.Finish(t.item.ID, failed, detail, paths, time.Now())
	if errors.Is(err, ErrInvalidTransition) {
		// Abandoned by a forced shutdown while the exporter was still running.
		t.logger.Warn().Str("item_id", t.item.ID).Str("worker", worker).
			Msg("job finished after it was abandoned, result discarded")
		return
	}
	if err != nil {
		t.logger.Error().Err(err).Str("item_id", t.item.ID).Msg("job could not finish")
		return
	}

	var ev *zerolog.Event
	if failed {
		ev = t.logger.Warn().Err(jobErr)
	} else {
		ev = t.logger.Debug()
	}
	ev.Str("item_id", t.item.ID).
		Str("worker", worker).
		Int64("duration_ms", d.Milliseconds()).
		Msg("report job finished")

	entry := logging.NewAuditEntry(auditOperation, t.traceID).
		WithParameters(map[string]string{
			"item_id": t.item.ID,
			"format":  string(t.cfg.Format),
			"worker":  worker,
		}).
		WithDurationMS(d.Milliseconds())
	if failed {
		entry = entry.WithError(detail)
	} else {
		entry = entry.WithSuccess(detail)
	}
	t.audit.Log(ctx, *entry)

	if t.metrics != nil {
		t.metrics.JobFinished(failed, d)
	}
}

// execute exports every selected format and waits for the files. A panic in the
// exporter is converted into an error.
func (t *task[T]) execute(ctx context.Context) (paths []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()

	for _, f := range t.cfg.Format.Expand() {
		base := t.basePath(f)
		path, exportErr := t.exporter.Export(ctx, t.item.Payload, f, base)
		if exportErr != nil {
			return paths, fmt.Errorf("export %s: %w", f, exportErr)
		}
		if path == "" {
			path = base + f.Extension()
		}
		paths = append(paths, path)
	}

	if err = waitForFiles(ctx, paths, t.cfg.VerifyInterval, t.cfg.VerifyAttempts); err != nil {
		return paths, err
	}
	return paths, nil
}

// basePath is <out>/<id> for a single format and <out>/<format>/<id> for all.
func (t *task[T]) basePath(f export.Format) string {
	name := fileName(t.item.ID)
	if t.cfg.Format == export.FormatAll {
		return filepath.Join(t.cfg.OutputDir, string(f), name)
	}
	return filepath.Join(t.cfg.OutputDir, name)
}

// fileName makes an item ID safe to use as a single path element.
func fileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		default:
			return r
		}
	}, id)
	if name == "." || name == ".." {
		return strings.Repeat("_", len(name))
	}
	return name
}
