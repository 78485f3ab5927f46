package batch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker errors.
var (
	ErrUnknownItem       = errors.New("unknown work item")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Tracker stores per-job status and timing plus aggregate counters for one run.
// Counters are lock-free; records sit behind an RWMutex. Each record is written
// only by the worker that owns the item.
//
// Invariant: Failed() <= Completed() <= Total() at every observable instant.
type Tracker struct {
	total     int
	startTime time.Time

	// mu protects records and the duration aggregate.
	mu          sync.RWMutex
	records     map[string]*JobRecord
	durationSum time.Duration
	timedJobs   int

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewTracker creates a tracker with every id Pending. IDs must be unique and non-empty.
func NewTracker(ids []string) (*Tracker, error) {
	records := make(map[string]*JobRecord, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, ErrEmptyItemID
		}
		if _, dup := records[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, id)
		}
		records[id] = &JobRecord{ItemID: id, Status: StatusPending}
	}

	return &Tracker{
		total:     len(ids),
		startTime: time.Now(),
		records:   records,
	}, nil
}

// MarkSubmitted counts a job handed to the pool. Status stays Pending.
func (t *Tracker) MarkSubmitted() {
	t.submitted.Add(1)
}

// Start moves id from Pending to InProgress on the named worker.
func (t *Tracker) Start(id, worker string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if rec.Status != StatusPending {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, rec.Status, StatusInProgress)
	}

	rec.Status = StatusInProgress
	rec.Worker = worker
	rec.StartedAt = at
	return nil
}

// Finish moves id from InProgress to Completed, or Failed when failed is set, and
// returns the job's duration. The completed counter is bumped after the record is
// written, so a drained tracker only holds terminal records.
func (t *Tracker) Finish(id string, failed bool, detail string, paths []string, at time.Time) (time.Duration, error) {
	status := StatusCompleted
	if failed {
		status = StatusFailed
	}

	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if rec.Status != StatusInProgress {
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, rec.Status, status)
	}

	rec.Status = status
	rec.Detail = detail
	rec.Paths = paths
	rec.EndedAt = at
	rec.Duration = max(at.Sub(rec.StartedAt), 0)
	t.durationSum += rec.Duration
	t.timedJobs++
	d := rec.Duration
	t.mu.Unlock()

	// completed before failed keeps failed <= completed for readers that load
	// failed first.
	t.completed.Add(1)
	if failed {
		t.failed.Add(1)
	}
	return d, nil
}

// Abandon fails every record that is not terminal yet and returns their IDs in
// order. It is used after a forced shutdown; a worker that still finishes one of
// these jobs later gets ErrInvalidTransition. Abandoned jobs are left out of the
// average duration.
func (t *Tracker) Abandon(detail string, at time.Time) []string {
	t.mu.Lock()
	var ids []string
	for id, rec := range t.records {
		if rec.Status.IsTerminal() {
			continue
		}
		if rec.StartedAt.IsZero() {
			rec.StartedAt = at
		}
		rec.Status = StatusFailed
		rec.Detail = detail
		rec.EndedAt = at
		rec.Duration = max(at.Sub(rec.StartedAt), 0)
		ids = append(ids, id)
	}
	t.mu.Unlock()

	n := int64(len(ids))
	t.completed.Add(n)
	t.failed.Add(n)
	sort.Strings(ids)
	return ids
}

// Total returns the number of tracked items.
func (t *Tracker) Total() int { return t.total }

// StartTime returns when the tracker was created.
func (t *Tracker) StartTime() time.Time { return t.startTime }

// Submitted returns how many jobs were handed to the pool.
func (t *Tracker) Submitted() int { return int(t.submitted.Load()) }

// Completed returns how many jobs reached a terminal state, successful or not.
func (t *Tracker) Completed() int { return int(t.completed.Load()) }

// Failed returns how many jobs ended Failed.
func (t *Tracker) Failed() int { return int(t.failed.Load()) }

// Succeeded returns how many jobs ended Completed.
func (t *Tracker) Succeeded() int {
	failed := t.failed.Load()
	return int(t.completed.Load() - failed)
}

// IsDrained reports whether every item is terminal.
func (t *Tracker) IsDrained() bool {
	return t.Completed() >= t.total
}

// AverageDuration returns the mean duration of finished jobs, or 0.
func (t *Tracker) AverageDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.averageLocked()
}

func (t *Tracker) averageLocked() time.Duration {
	if t.timedJobs == 0 {
		return 0
	}
	return t.durationSum / time.Duration(t.timedJobs)
}

// Record returns a copy of the record for id.
func (t *Tracker) Record(id string) (JobRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return JobRecord{}, false
	}
	return copyRecord(rec), true
}

// Records returns a copy of every record keyed by item ID.
func (t *Tracker) Records() map[string]JobRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]JobRecord, len(t.records))
	for id, rec := range t.records {
		out[id] = copyRecord(rec)
	}
	return out
}

// StatusMap returns the human-readable status of every item.
func (t *Tracker) StatusMap() map[string]string {
	recs := t.Records()
	out := make(map[string]string, len(recs))
	for id, rec := range recs {
		out[id] = rec.Description()
	}
	return out
}

// Durations returns the recorded duration of every finished item.
func (t *Tracker) Durations() map[string]time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Duration, t.timedJobs)
	for id, rec := range t.records {
		if rec.Status.IsTerminal() {
			out[id] = rec.Duration
		}
	}
	return out
}

func copyRecord(rec *JobRecord) JobRecord {
	c := *rec
	if rec.Paths != nil {
		c.Paths = append([]string(nil), rec.Paths...)
	}
	return c
}

// StatusCounts tallies records per status.
func (t *Tracker) StatusCounts() map[JobStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[JobStatus]int, 4)
	for _, rec := range t.records {
		counts[rec.Status]++
	}
	return counts
}
