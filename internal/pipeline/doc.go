// Package pipeline runs the collect, fetch, and write stages for every
// selected source and reports a per-source summary.
//
// A run holds an exclusive lock on the state directory, tags every log line
// with a fresh run id, and executes source pipelines concurrently. Sources
// share only the fetch rate limiter and the filesystem; a source that aborts
// (bad input, unwritable cache or artifact) is reported in its SourceResult
// while its siblings run to completion. Run returns only after every source
// has finished.
package pipeline
