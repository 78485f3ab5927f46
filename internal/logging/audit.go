package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuditEntry is one structured event describing a finished operation.
type AuditEntry struct {
	Timestamp  time.Time
	TraceID    string
	Operation  string
	Parameters map[string]string
	Success    bool
	Detail     string
	DurationMS int64
}

// NewAuditEntry starts an entry for operation.
func NewAuditEntry(operation, traceID string) *AuditEntry {
	return &AuditEntry{
		Timestamp: time.Now(),
		TraceID:   traceID,
		Operation: operation,
	}
}

// WithParameters attaches key/value context.
func (e *AuditEntry) WithParameters(params map[string]string) *AuditEntry {
	e.Parameters = params
	return e
}

// WithSuccess marks the entry successful with an optional detail.
func (e *AuditEntry) WithSuccess(detail string) *AuditEntry {
	e.Success = true
	e.Detail = detail
	return e
}

// WithError marks the entry failed.
func (e *AuditEntry) WithError(detail string) *AuditEntry {
	e.Success = false
	e.Detail = detail
	return e
}

// WithDuration sets the duration measured from start.
func (e *AuditEntry) WithDuration(start time.Time) *AuditEntry {
	e.DurationMS = time.Since(start).Milliseconds()
	return e
}

// WithDurationMS sets an already measured duration.
func (e *AuditEntry) WithDurationMS(ms int64) *AuditEntry {
	e.DurationMS = ms
	return e
}

// AuditLogger receives audit entries. Log is fire-and-forget: it never returns an
// error to the caller.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry)
	Close() error
}

// AuditLoggerConfig configures NewAuditLogger.
type AuditLoggerConfig struct {
	Enabled bool
	File    string
}

// NewAuditLogger returns a JSON-lines audit logger writing to cfg.File, or a no-op
// logger when auditing is disabled or the file cannot be opened.
func NewAuditLogger(cfg AuditLoggerConfig) AuditLogger {
	if !cfg.Enabled || cfg.File == "" {
		return noopAuditLogger{}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return noopAuditLogger{}
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return noopAuditLogger{}
	}
	return &fileAuditLogger{
		file:   f,
		logger: zerolog.New(f).With().Timestamp().Str("log_type", "audit").Logger(),
	}
}

// NewWriterAuditLogger returns an audit logger that writes through l. Close is a no-op.
func NewWriterAuditLogger(l zerolog.Logger) AuditLogger {
	return &fileAuditLogger{logger: l.With().Str("log_type", "audit").Logger()}
}

type fileAuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

func (a *fileAuditLogger) Log(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ev := a.logger.Info().
		Str("operation", entry.Operation).
		Bool("success", entry.Success).
		Int64("duration_ms", entry.DurationMS)
	if entry.TraceID != "" {
		ev = ev.Str("trace_id", entry.TraceID)
	}
	if entry.Detail != "" {
		ev = ev.Str("detail", entry.Detail)
	}
	if len(entry.Parameters) > 0 {
		ev = ev.Interface("parameters", entry.Parameters)
	}
	ev.Msg("audit")
}

func (a *fileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	if err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	return nil
}

type noopAuditLogger struct{}

func (noopAuditLogger) Log(context.Context, AuditEntry) {}
func (noopAuditLogger) Close() error                    { return nil }

// ContextWithAuditLogger stores a in ctx.
func ContextWithAuditLogger(ctx context.Context, a AuditLogger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, a)
}

// AuditLoggerFromContext returns the audit logger in ctx, or a no-op logger.
func AuditLoggerFromContext(ctx context.Context) AuditLogger {
	if a, ok := ctx.Value(auditLoggerKey).(AuditLogger); ok && a != nil {
		return a
	}
	return noopAuditLogger{}
}
