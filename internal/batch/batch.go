package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"avatarmap/internal/collector"
	"avatarmap/internal/failure"
	"avatarmap/internal/fetch"
	"avatarmap/internal/logging"
	"avatarmap/internal/mapping"
	"avatarmap/internal/textutil"
)

// Status describes how one identifier was handled.
type Status string

const (
	StatusFetched   Status = "fetched"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
	StatusCollision Status = "collision"
	StatusCanceled  Status = "canceled"
)

// Fetcher is the single-identifier fetch step the runner drives.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Outcome records what happened to a single identifier.
type Outcome struct {
	Entry    collector.Entry
	Slug     string
	Status   Status
	Files    []fetch.File
	Attempts int
	Err      error
}

// Report is the result of one batch. Outcomes follow the input order.
type Report struct {
	Source   string
	Outcomes []Outcome
	Duration time.Duration
}

// Mapping returns the successful results keyed by the name the fetch step
// produced.
func (r Report) Mapping() mapping.Mapping {
	m := make(mapping.Mapping)
	for _, outcome := range r.Outcomes {
		if outcome.Status != StatusFetched || len(outcome.Files) == 0 {
			continue
		}
		m[outcome.Files[0].Name] = outcome.Files
	}
	return m
}

// Count returns how many outcomes have status.
func (r Report) Count(status Status) int {
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that did not contribute a mapping entry
// because of an error.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusFailed {
			out = append(out, outcome)
		}
	}
	return out
}

// Runner executes batches.
type Runner struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// NewRunner constructs a Runner running at most concurrency fetches at once.
// Values below one are treated as one.
func NewRunner(fetcher Fetcher, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "batch"),
	}
}

// Run attempts every entry exactly once (one fetch plus at most one retry).
// The returned error is non-nil only when the batch was cut short by
// cancellation or a filesystem failure; the Report is populated either way.
func (r *Runner) Run(ctx context.Context, source string, entries []collector.Entry) (Report, error) {
	started := time.Now()
	logger := r.logger.With(logging.String(logging.FieldSource, source))
	report := Report{Source: source, Outcomes: make([]Outcome, len(entries))}

	for i, owner := range assignSlugs(entries) {
		report.Outcomes[i] = Outcome{Entry: entries[i], Slug: textutil.Slug(entries[i].Key)}
		if owner != i {
			report.Outcomes[i].Status = StatusCollision
			logging.WarnWithContext(logger, "identifier skipped", "slug_collision",
				logging.String(logging.FieldIdentifier, entries[i].Name),
				logging.String("slug", report.Outcomes[i].Slug),
				logging.String("kept", entries[owner].Name),
				logging.String(logging.FieldErrorHint, "two identifiers reduce to the same file name; rename one in the input data"),
				logging.String(logging.FieldImpact, "avatar omitted from mapping"),
			)
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)

	for i := range report.Outcomes {
		outcome := &report.Outcomes[i]
		if outcome.Status == StatusCollision {
			continue
		}
		if gctx.Err() != nil {
			outcome.Status = StatusCanceled
			continue
		}
		group.Go(func() error {
			if gctx.Err() != nil {
				outcome.Status = StatusCanceled
				return nil
			}
			return r.runOne(gctx, logger, source, outcome)
		})
	}

	err := group.Wait()
	report.Duration = time.Since(started)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i := range report.Outcomes {
			if report.Outcomes[i].Status == "" {
				report.Outcomes[i].Status = StatusCanceled
			}
		}
		return report, err
	}

	logger.Info("batch complete",
		logging.Int("identifiers", len(entries)),
		logging.Int("fetched", report.Count(StatusFetched)),
		logging.Int("empty", report.Count(StatusEmpty)),
		logging.Int("failed", report.Count(StatusFailed)),
		logging.Int("collisions", report.Count(StatusCollision)),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, logger *slog.Logger, source string, outcome *Outcome) error {
	result, err := r.fetcher.FetchWithRetry(ctx, fetch.Request{
		Source:     source,
		Identifier: outcome.Entry.Name,
		Slug:       outcome.Slug,
		ImageURL:   outcome.Entry.ImageURL,
	})
	outcome.Attempts = result.Attempts
	switch {
	case err == nil && len(result.Files) == 0:
		outcome.Status = StatusEmpty
		return nil
	case err == nil:
		outcome.Status = StatusFetched
		outcome.Files = result.Files
		return nil
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		outcome.Status = StatusCanceled
		outcome.Err = err
		return err
	case errors.Is(err, failure.ErrFilesystem):
		outcome.Status = StatusFailed
		outcome.Err = err
		return err
	}

	outcome.Status = StatusFailed
	outcome.Err = err
	logging.WarnWithContext(logger, "identifier skipped", "fetch_failed",
		logging.String(logging.FieldIdentifier, outcome.Entry.Name),
		logging.Int("attempts", result.Attempts),
		logging.String("error_kind", failure.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the image URL or retry the run later"),
		logging.String(logging.FieldImpact, "avatar omitted from mapping"),
	)
	return nil
}

// assignSlugs returns, for each entry, the index of the entry that owns its
// slug. The owner is the entry with the smallest key; entries are usually
// already sorted by key, but input order is not assumed.
func assignSlugs(entries []collector.Entry) []int {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return entries[order[a]].Key < entries[order[b]].Key })

	owners := make([]int, len(entries))
	bySlug := make(map[string]int, len(entries))
	for _, idx := range order {
		slug := textutil.Slug(entries[idx].Key)
		if owner, ok := bySlug[slug]; ok {
			owners[idx] = owner
			continue
		}
		bySlug[slug] = idx
		owners[idx] = idx
	}
	return owners
}
