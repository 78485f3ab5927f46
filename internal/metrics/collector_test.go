package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c, err := NewCollector("")
	require.NoError(t, err)

	c.ItemsSubmitted(3)
	c.JobFinished(false, 20*time.Millisecond)
	c.JobFinished(false, 30*time.Millisecond)
	c.JobFinished(true, 5*time.Second)
	c.ActiveWorkers(2)

	assert.InDelta(t, 3, testutil.ToFloat64(c.itemsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.jobsTotal.WithLabelValues(OutcomeCompleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.jobsTotal.WithLabelValues(OutcomeFailed)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.activeWorkers), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(c.jobDuration))

	t.Run("independent registries", func(t *testing.T) {
		other, err := NewCollector("")
		require.NoError(t, err)
		assert.InDelta(t, 0, testutil.ToFloat64(other.itemsTotal), 0)
	})

	t.Run("textfile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gradebook.prom")
		require.NoError(t, c.WriteTextfile(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `gradebook_report_jobs_total{outcome="failed"} 1`)
		assert.Contains(t, string(data), "gradebook_report_items_submitted_total 3")
	})

	t.Run("textfile in missing directory", func(t *testing.T) {
		err := c.WriteTextfile(filepath.Join(t.TempDir(), "nope", "x.prom"))
		assert.Error(t, err)
	})
}
