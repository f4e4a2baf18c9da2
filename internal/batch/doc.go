// Package batch drives fetch-with-retry across one source's identifiers with
// a bounded worker pool.
//
// Each worker finishes an identifier's attempt and optional retry before it
// takes the next one. Per-identifier failures are recorded in the Report and
// never stop the batch; only context cancellation and filesystem errors end
// a run early, because both affect every remaining identifier.
package batch
