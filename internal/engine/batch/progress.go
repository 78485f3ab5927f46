package batch

import (
	"math"
	"time"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Snapshot is a point-in-time view of a run with derived rates. It is what the
// Reporter renders on every tick.
type Snapshot struct {
	Total     int
	Done      int
	Failed    int
	Succeeded int

	Elapsed            time.Duration
	AverageJob         time.Duration
	Throughput         float64 // items per second
	EstimatedRemaining time.Duration
	Percent            float64
}

// Snapshot captures the tracker state as of now.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	// failed before completed: see Finish.
	failed := int(t.failed.Load())
	done := int(t.completed.Load())
	avg := t.AverageDuration()

	return computeSnapshot(t.total, done, failed, avg, now.Sub(t.startTime))
}

func computeSnapshot(total, done, failed int, avg, elapsed time.Duration) Snapshot {
	elapsed = max(elapsed, 0)
	s := Snapshot{
		Total:      total,
		Done:       done,
		Failed:     failed,
		Succeeded:  done - failed,
		Elapsed:    elapsed,
		AverageJob: avg,
		Throughput: throughput(done, elapsed),
		Percent:    percentComplete(done, total),
	}
	if done > 0 && total > done {
		s.EstimatedRemaining = avg * time.Duration(total-done)
	}
	return s
}

// throughput divides by at least one second so that early ticks do not report
// absurd rates.
func throughput(done int, elapsed time.Duration) float64 {
	return float64(done) / math.Max(elapsed.Seconds(), 1)
}

// percentComplete treats an empty run as finished.
func percentComplete(done, total int) float64 {
	if total == 0 {
		return percentMultiplier
	}
	return float64(done) / float64(total) * percentMultiplier
}

// IsComplete reports whether every item is terminal.
func (s Snapshot) IsComplete() bool {
	return s.Done >= s.Total
}

// Remaining returns how many items are not yet terminal.
func (s Snapshot) Remaining() int {
	return max(s.Total-s.Done, 0)
}
