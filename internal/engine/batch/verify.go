package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// ErrNotMaterialized is recorded when a written file never became visible.
var ErrNotMaterialized = errors.New("output file did not materialize")

// waitForFiles polls each path until it exists, checking up to attempts times
// with interval between checks. Storage may acknowledge a write before a stat can
// see it, hence the polling. Errors other than "not exist" fail immediately.
func waitForFiles(ctx context.Context, paths []string, interval time.Duration, attempts int) error {
	attempts = max(attempts, 1)
	for _, path := range paths {
		if err := waitForFile(ctx, path, interval, attempts); err != nil {
			return err
		}
	}
	return nil
}

func waitForFile(ctx context.Context, path string, interval time.Duration, attempts int) error {
	for attempt := 1; ; attempt++ {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("checking %s: %w", path, err)
		case attempt >= attempts:
			return fmt.Errorf("%w: %s not found after %d checks", ErrNotMaterialized, path, attempts)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-time.After(interval):
		}
	}
}
