// Package batch generates many independent report files concurrently.
//
// An Orchestrator fans one job per WorkItem out to a fixed-size Pool of worker
// goroutines. Each job calls an Exporter, waits for the written files to become
// visible on storage, and records its outcome in a Tracker. Key properties:
//   - Per-job failures (export errors, panics, files that never materialize) are
//     recorded as Failed and never abort the run
//   - Only setup errors (bad config, unusable output directory) are returned from Run
//   - Progress is pulled from the Tracker by the calling goroutine at a fixed cadence
//     and rendered by a Reporter, followed by a final Summary
//   - Pool shutdown waits a bounded time, then cancels the pool context and abandons
//     whatever is still running
//
// "Completed" in the Tracker means finished, successfully or not. Use Succeeded for
// the success count.
package batch
