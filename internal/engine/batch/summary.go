package batch

import (
	"io/fs"
	"path/filepath"
	"time"
)

// Summary is the outcome of a run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Workers   int

	WallTime   time.Duration
	AverageJob time.Duration
	// Speedup is the estimated sequential time (AverageJob * Total) over WallTime.
	Speedup    float64
	Throughput float64

	OutputDir   string
	OutputBytes int64

	// ForcedShutdown is set when the pool had to be terminated after the
	// shutdown timeout.
	ForcedShutdown bool

	Records map[string]JobRecord
}

// Failures returns the failed records ordered by item ID.
func (s *Summary) Failures() []JobRecord {
	return sortedFailures(s.Records)
}

func buildSummary(t *Tracker, cfg RunConfig, workers int, runID string, wall time.Duration) *Summary {
	snap := t.Snapshot(t.StartTime().Add(wall))

	var speedup float64
	if wall > 0 {
		speedup = float64(snap.AverageJob) * float64(snap.Total) / float64(wall)
	}

	return &Summary{
		RunID:       runID,
		Total:       snap.Total,
		Succeeded:   snap.Succeeded,
		Failed:      snap.Failed,
		Workers:     workers,
		WallTime:    wall,
		AverageJob:  snap.AverageJob,
		Speedup:     speedup,
		Throughput:  snap.Throughput,
		OutputDir:   cfg.OutputDir,
		OutputBytes: dirSize(cfg.OutputDir),
		Records:     t.Records(),
	}
}

// dirSize sums regular file sizes under root. Anything that cannot be read
// contributes 0.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip unreadable entries without stopping the walk.
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
