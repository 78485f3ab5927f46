package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rshade/gradebook/internal/logging"
)

// ExitError asks main to exit with Code instead of the generic failure code.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return e.Reason
}

// ExitCode returns the exit code requested by err, or fallback when err carries
// none.
func ExitCode(err error, fallback int) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return fallback
}

// auditContext holds common context for the command-level audit entry.
type auditContext struct {
	logger  logging.AuditLogger
	traceID string
	params  map[string]string
	start   time.Time
	command string
}

// newAuditContext creates a new audit context.
func newAuditContext(ctx context.Context, command string, params map[string]string) *auditContext {
	return &auditContext{
		logger:  logging.AuditLoggerFromContext(ctx),
		traceID: logging.TraceIDFromContext(ctx),
		params:  params,
		start:   time.Now(),
		command: command,
	}
}

// logFailure logs an audit entry for a failed operation.
func (a *auditContext) logFailure(ctx context.Context, err error) {
	entry := logging.NewAuditEntry(a.command, a.traceID).
		WithParameters(a.params).
		WithError(err.Error()).
		WithDuration(a.start)
	a.logger.Log(ctx, *entry)
}

// logSuccess logs an audit entry for a finished run.
func (a *auditContext) logSuccess(ctx context.Context, total, failed int) {
	entry := logging.NewAuditEntry(a.command, a.traceID).
		WithParameters(a.params).
		WithSuccess(fmt.Sprintf("%d report jobs, %d failed", total, failed)).
		WithDuration(a.start)
	a.logger.Log(ctx, *entry)
}
