package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("RunsEveryTask", func(t *testing.T) {
		p := NewPool(context.Background(), 4, 100, zerolog.Nop())
		var ran atomic.Int32
		for range 100 {
			require.NoError(t, p.Submit(func(context.Context, int) { ran.Add(1) }))
		}
		require.NoError(t, p.Shutdown(5*time.Second))
		assert.Equal(t, int32(100), ran.Load())
	})

	t.Run("WorkerIDsAreStable", func(t *testing.T) {
		p := NewPool(context.Background(), 3, 30, zerolog.Nop())
		var mu sync.Mutex
		seen := map[int]bool{}
		for range 30 {
			require.NoError(t, p.Submit(func(_ context.Context, id int) {
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}))
		}
		require.NoError(t, p.Shutdown(5*time.Second))
		for id := range seen {
			assert.GreaterOrEqual(t, id, 1)
			assert.LessOrEqual(t, id, 3)
		}
	})

	t.Run("ActiveIsBounded", func(t *testing.T) {
		const size = 2
		p := NewPool(context.Background(), size, 10, zerolog.Nop())
		release := make(chan struct{})
		var started sync.WaitGroup
		started.Add(size)
		for range size {
			require.NoError(t, p.Submit(func(context.Context, int) {
				started.Done()
				<-release
			}))
		}
		started.Wait()
		assert.Equal(t, size, p.Active())
		assert.LessOrEqual(t, p.Active(), p.Size())
		close(release)
		require.NoError(t, p.Shutdown(5*time.Second))
		assert.Equal(t, 0, p.Active())
	})

	t.Run("PanicIsContained", func(t *testing.T) {
		p := NewPool(context.Background(), 1, 2, zerolog.Nop())
		var ran atomic.Bool
		require.NoError(t, p.Submit(func(context.Context, int) { panic("boom") }))
		require.NoError(t, p.Submit(func(context.Context, int) { ran.Store(true) }))
		require.NoError(t, p.Shutdown(5*time.Second))
		assert.True(t, ran.Load(), "worker should survive a panicking task")
	})

	t.Run("SubmitAfterShutdown", func(t *testing.T) {
		p := NewPool(context.Background(), 1, 1, zerolog.Nop())
		require.NoError(t, p.Shutdown(time.Second))
		require.ErrorIs(t, p.Submit(func(context.Context, int) {}), ErrPoolClosed)
	})

	t.Run("NilTask", func(t *testing.T) {
		p := NewPool(context.Background(), 1, 1, zerolog.Nop())
		require.Error(t, p.Submit(nil))
		require.NoError(t, p.Shutdown(time.Second))
	})

	t.Run("ShutdownIsIdempotent", func(t *testing.T) {
		p := NewPool(context.Background(), 2, 0, zerolog.Nop())
		require.NoError(t, p.Shutdown(time.Second))
		require.NoError(t, p.Shutdown(time.Second))
	})

	t.Run("ForcedShutdownCancelsContext", func(t *testing.T) {
		p := NewPool(context.Background(), 1, 1, zerolog.Nop())
		cancelled := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, p.Submit(func(ctx context.Context, _ int) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		}))
		<-started

		err := p.Shutdown(20 * time.Millisecond)
		require.ErrorIs(t, err, ErrShutdownTimeout)

		select {
		case <-cancelled:
		case <-time.After(2 * time.Second):
			t.Fatal("task context was not cancelled by forced shutdown")
		}
		require.ErrorIs(t, p.Shutdown(time.Second), ErrShutdownTimeout)
	})

	t.Run("ShutdownReleasesBlockedSubmit", func(t *testing.T) {
		p := NewPool(context.Background(), 1, 0, zerolog.Nop())
		release := make(chan struct{})
		defer close(release)
		started := make(chan struct{})
		go func() {
			_ = p.Submit(func(context.Context, int) {
				close(started)
				<-release
			})
		}()
		<-started

		// The only worker is busy and the queue is unbuffered, so this blocks.
		submitted := make(chan error, 1)
		go func() {
			submitted <- p.Submit(func(context.Context, int) {})
		}()
		time.Sleep(20 * time.Millisecond)

		start := time.Now()
		require.ErrorIs(t, p.Shutdown(50*time.Millisecond), ErrShutdownTimeout)
		assert.Less(t, time.Since(start), time.Second)

		select {
		case err := <-submitted:
			require.ErrorIs(t, err, ErrPoolClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("blocked Submit was not released by Shutdown")
		}
	})

	t.Run("SizeBelowOne", func(t *testing.T) {
		p := NewPool(context.Background(), 0, 0, zerolog.Nop())
		assert.Equal(t, 1, p.Size())
		require.NoError(t, p.Shutdown(time.Second))
	})
}

func TestWaitForFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("AlreadyPresent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.csv")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, waitForFiles(ctx, []string{path}, time.Millisecond, 1))
	})

	t.Run("AppearsLate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "late.csv")
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = os.WriteFile(path, []byte("x"), 0o600)
		}()
		require.NoError(t, waitForFiles(ctx, []string{path}, 5*time.Millisecond, 200))
	})

	t.Run("NeverAppears", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.csv")
		start := time.Now()
		err := waitForFiles(ctx, []string{path}, 5*time.Millisecond, 4)
		require.ErrorIs(t, err, ErrNotMaterialized)
		assert.Contains(t, err.Error(), "after 4 checks")
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	})

	t.Run("StatErrorFailsImmediately", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		// A path below a regular file yields ENOTDIR, not ENOENT.
		err := waitForFiles(ctx, []string{filepath.Join(file, "child")}, time.Second, 50)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotMaterialized)
	})

	t.Run("NoPaths", func(t *testing.T) {
		require.NoError(t, waitForFiles(ctx, nil, time.Second, 50))
	})
}
