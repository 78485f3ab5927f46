package batch

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsciiBar(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "[>         ]"},
		{50, "[=====>    ]"},
		{100, "[==========]"},
		{150, "[==========]"},
		{-5, "[>         ]"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0f", tt.percent), func(t *testing.T) {
			assert.Equal(t, tt.want, asciiBar(tt.percent, 10))
		})
	}
}

func TestReporter_ProgressLine(t *testing.T) {
	r := NewReporter(&bytes.Buffer{})
	require.False(t, r.interactive)

	s := computeSnapshot(1500, 750, 3, 200*time.Millisecond, 10*time.Second)
	line := r.ProgressLine(s, 4)

	assert.True(t, strings.HasPrefix(line, "["), line)
	assert.Contains(t, line, " 50.0%")
	assert.Contains(t, line, "750/1,500 done")
	assert.Contains(t, line, "3 failed")
	assert.Contains(t, line, "4 active")
	assert.Contains(t, line, "75.0/s")
	assert.Contains(t, line, "ETA 2m30s")
}

func TestReporter_ProgressLineBeforeFirstCompletion(t *testing.T) {
	r := NewReporter(&bytes.Buffer{})
	line := r.ProgressLine(computeSnapshot(5, 0, 0, 0, time.Second), 2)
	assert.Contains(t, line, "ETA --")
}

func TestReporter_RenderProgressNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.RenderProgress(computeSnapshot(4, 0, 0, 0, 0), 1)
	r.RenderProgress(computeSnapshot(4, 0, 0, 0, 0), 2)
	r.RenderProgress(computeSnapshot(4, 1, 0, time.Millisecond, 0), 2)
	r.RenderProgress(computeSnapshot(4, 1, 0, time.Millisecond, 0), 2)
	r.RenderFinal(computeSnapshot(4, 4, 0, time.Millisecond, 0), 0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "0/4 done")
	assert.Contains(t, lines[1], "1/4 done")
	assert.Contains(t, lines[2], "4/4 done")
	assert.NotContains(t, buf.String(), "\r")
}

func TestReporter_RenderProgressInteractive(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf).WithInteractive(true)

	r.RenderProgress(computeSnapshot(2, 1, 0, time.Millisecond, 0), 1)
	r.RenderFinal(computeSnapshot(2, 2, 0, time.Millisecond, 0), 0)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, clearLine))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "2/2 done")
}

func TestReporter_RenderBanner(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{"Empty", computeSnapshot(0, 0, 0, 0, 0), "No report jobs to run"},
		{"AllGood", computeSnapshot(1200, 1200, 0, 0, 0), "All 1,200 report jobs finished"},
		{"SomeFailed", computeSnapshot(5, 5, 2, 0, 0), "All 5 report jobs finished, 2 failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewReporter(&buf).RenderBanner(tt.snap)
			assert.Equal(t, tt.want+"\n", buf.String())
		})
	}
}

func TestReporter_RenderSummary(t *testing.T) {
	records := map[string]JobRecord{
		"s1": {ItemID: "s1", Status: StatusCompleted},
		"s2": {ItemID: "s2", Status: StatusFailed, Detail: "export json: disk full"},
	}
	for i := range 12 {
		id := fmt.Sprintf("x%02d", i)
		records[id] = JobRecord{ItemID: id, Status: StatusFailed, Detail: "boom"}
	}

	sum := &Summary{
		Total:       14,
		Succeeded:   1,
		Failed:      13,
		Workers:     4,
		WallTime:    1500 * time.Millisecond,
		AverageJob:  250 * time.Millisecond,
		Speedup:     2.333,
		Throughput:  14,
		OutputDir:   "/tmp/reports",
		OutputBytes: 2048,
		Records:     records,
	}

	var buf bytes.Buffer
	NewReporter(&buf).RenderSummary(sum)
	out := buf.String()

	assert.Contains(t, out, "REPORT SUMMARY")
	assert.Contains(t, out, "Total tasks:  14")
	assert.Contains(t, out, "Succeeded:    1")
	assert.Contains(t, out, "Failed:       13")
	assert.Contains(t, out, "Workers:      4")
	assert.Contains(t, out, "Wall time:    1.5s")
	assert.Contains(t, out, "Average job:  250ms")
	assert.Contains(t, out, "Speedup:      2.33x")
	assert.Contains(t, out, "Throughput:   14.00 items/s")
	assert.Contains(t, out, "Output:       /tmp/reports")
	assert.Contains(t, out, "Output size:  2,048 bytes (2.0 KiB)")
	assert.Contains(t, out, "Failed items")
	assert.Contains(t, out, "  - s2: export json: disk full")
	assert.Contains(t, out, "... and 3 more")
	assert.NotContains(t, out, "s1:")
	assert.NotContains(t, out, "Shutdown:")

	sum.ForcedShutdown = true
	buf.Reset()
	NewReporter(&buf).RenderSummary(sum)
	assert.Contains(t, buf.String(), "Shutdown:     forced, unfinished jobs abandoned")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "0 B", humanBytes(0))
	assert.Equal(t, "1023 B", humanBytes(1023))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
	assert.Equal(t, "2.0 GiB", humanBytes(2<<30))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "s-001", fileName("s-001"))
	assert.Equal(t, "a_b_c_d", fileName("a/b\\c:d"))
	assert.Equal(t, "_", fileName("."))
	assert.Equal(t, "__", fileName(".."))
}
