package batch

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle of one job: Pending -> InProgress -> Completed|Failed.
type JobStatus int

// Job states.
const (
	StatusPending JobStatus = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("JobStatus(%d)", int(s))
	}
}

// IsTerminal reports whether s is Completed or Failed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobRecord is the tracked state of one item.
type JobRecord struct {
	ItemID    string
	Status    JobStatus
	Worker    string
	Detail    string
	Paths     []string
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// Description renders the record for humans, e.g. "IN_PROGRESS (worker-2)".
func (r JobRecord) Description() string {
	switch r.Status {
	case StatusInProgress:
		return fmt.Sprintf("%s (%s)", r.Status, r.Worker)
	case StatusFailed:
		return fmt.Sprintf("%s: %s", r.Status, r.Detail)
	default:
		return r.Status.String()
	}
}
