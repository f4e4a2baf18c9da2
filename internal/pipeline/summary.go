package pipeline

import (
	"errors"
	"fmt"
	"time"

	"avatarmap/internal/batch"
)

// SourceResult is the outcome of one source pipeline.
type SourceResult struct {
	Name         string
	Identifiers  int
	Report       batch.Report
	ArtifactPath string
	// Entries is the number of keys in the written artifact.
	Entries    int
	StartedAt  time.Time
	FinishedAt time.Time
	// Err is set when the source aborted; no artifact was written.
	Err error
}

// Succeeded reports whether the source wrote its artifact.
func (r SourceResult) Succeeded() bool {
	return r.Err == nil
}

// Duration returns how long the source took.
func (r SourceResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary collects every source's outcome for one run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Sources   []SourceResult
}

// Written returns the number of artifacts written.
func (s Summary) Written() int {
	n := 0
	for _, src := range s.Sources {
		if src.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of aborted sources.
func (s Summary) Failed() int {
	return len(s.Sources) - s.Written()
}

// Err joins the errors of every aborted source, or returns nil when all
// sources wrote their artifacts.
func (s Summary) Err() error {
	var errs []error
	for _, src := range s.Sources {
		if src.Err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, src.Err))
		}
	}
	return errors.Join(errs...)
}
