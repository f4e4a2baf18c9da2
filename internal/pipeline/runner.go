package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"avatarmap/internal/batch"
	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/fetch"
	"avatarmap/internal/history"
	"avatarmap/internal/logging"
	"avatarmap/internal/mapping"
	"avatarmap/internal/notifications"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("another avatarmap run is in progress")

// Options configures a Runner. Only Config is required.
type Options struct {
	Config *config.Config
	// Fetcher overrides the fetcher built from Config.
	Fetcher batch.Fetcher
	// Concurrency overrides fetch.concurrency when positive.
	Concurrency int
	History     history.Recorder
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Runner executes pipeline runs.
type Runner struct {
	cfg         *config.Config
	fetcher     batch.Fetcher
	concurrency int
	history     history.Recorder
	notifier    notifications.Service
	base        *slog.Logger
	logger      *slog.Logger
}

// NewRunner constructs a Runner from opts.
func NewRunner(opts Options) *Runner {
	cfg := opts.Config
	base := opts.Logger
	if base == nil {
		base = logging.NewNop()
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetchOpts := fetch.OptionsFromConfig(cfg)
		fetchOpts.Logger = base
		fetcher = fetch.New(fetchOpts)
	}
	concurrency := cfg.Fetch.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	recorder := opts.History
	if recorder == nil {
		recorder = history.NewNoop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	return &Runner{
		cfg:         cfg,
		fetcher:     fetcher,
		concurrency: concurrency,
		history:     recorder,
		notifier:    notifier,
		base:        base,
		logger:      logging.NewComponentLogger(base, "pipeline"),
	}
}

// Run executes every definition concurrently and waits for all of them.
// The returned error covers only problems that prevent the run from
// starting; per-source failures are reported through Summary.Err.
func (r *Runner) Run(ctx context.Context, defs []Definition) (Summary, error) {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return Summary{}, failure.Wrap(failure.ErrFilesystem, "", "prepare state", "", err)
	}

	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, failure.Wrap(failure.ErrFilesystem, "", "acquire run lock", r.cfg.LockPath(), err)
	}
	if !locked {
		return Summary{}, fmt.Errorf("%w (lock %s)", ErrRunInProgress, r.cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Sources:   make([]SourceResult, len(defs)),
	}
	ctx = logging.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run started",
		logging.Int("sources", len(defs)),
		logging.Int("concurrency", r.concurrency),
	)

	var group errgroup.Group
	for i, def := range defs {
		group.Go(func() error {
			summary.Sources[i] = r.runSource(ctx, def)
			return nil
		})
	}
	_ = group.Wait()
	summary.Duration = time.Since(summary.StartedAt)

	r.notify(ctx, logger, summary)
	logger.Info("run finished",
		logging.Int("written", summary.Written()),
		logging.Int("failed", summary.Failed()),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) runSource(ctx context.Context, def Definition) SourceResult {
	ctx = logging.WithSource(ctx, def.Name)
	logger := logging.WithContext(ctx, r.logger)
	result := SourceResult{Name: def.Name, StartedAt: time.Now()}

	result.Err = r.executeSource(ctx, logger, def, &result)
	result.FinishedAt = time.Now()

	if result.Err != nil {
		logging.ErrorWithContext(logger, "source aborted", "source_aborted",
			logging.String("error_kind", failure.Kind(result.Err)),
			logging.Error(result.Err),
			logging.String(logging.FieldErrorHint, hintFor(result.Err)),
		)
	}
	r.record(ctx, logger, result)
	return result
}

func (r *Runner) executeSource(ctx context.Context, logger *slog.Logger, def Definition, result *SourceResult) error {
	if def.Collect == nil {
		return failure.Wrap(failure.ErrConfiguration, def.Name, "collect", "source has no collector", nil)
	}
	entries, err := def.Collect(ctx)
	if err != nil {
		if failure.Kind(err) == "transient" {
			err = failure.Wrap(failure.ErrInvalidInput, def.Name, "collect", "", err)
		}
		return err
	}
	result.Identifiers = len(entries)
	logger.Info("identifiers collected", logging.Int("identifiers", len(entries)))

	batchLogger := r.base
	if runID, ok := logging.RunIDFromContext(ctx); ok {
		batchLogger = batchLogger.With(logging.String(logging.FieldRunID, runID))
	}
	runner := batch.NewRunner(r.fetcher, r.concurrency, batchLogger)
	report, err := runner.Run(ctx, def.Name, entries)
	result.Report = report
	if err != nil {
		return err
	}

	m := report.Mapping()
	if r.cfg.Mapping.Merge {
		m = r.mergePrevious(logger, def.Name, m)
	}
	path, err := mapping.Write(r.cfg.Paths.MappingDir, def.Name, m)
	if err != nil {
		return err
	}
	result.ArtifactPath = path
	result.Entries = len(m)
	logger.Info("mapping written",
		logging.String("path", path),
		logging.Int("entries", len(m)),
		logging.Int("skipped", report.Count(batch.StatusFailed)+report.Count(batch.StatusCollision)),
	)
	return nil
}

// mergePrevious folds the existing artifact into m. An unreadable previous
// artifact is replaced rather than failing the source.
func (r *Runner) mergePrevious(logger *slog.Logger, source string, m mapping.Mapping) mapping.Mapping {
	prev, err := mapping.Load(mapping.ArtifactPath(r.cfg.Paths.MappingDir, source))
	switch {
	case err == nil:
		return mapping.Merge(prev, m)
	case errors.Is(err, fs.ErrNotExist):
		return m
	default:
		logging.WarnWithContext(logger, "previous mapping unreadable", "mapping_merge_skipped",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix or delete the artifact to restore merging"),
			logging.String(logging.FieldImpact, "artifact replaced with this run's results only"),
		)
		return m
	}
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, result SourceResult) {
	runID, _ := logging.RunIDFromContext(ctx)
	entry := history.Entry{
		RunID:        runID,
		Source:       result.Name,
		Status:       history.StatusSucceeded,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		Identifiers:  result.Identifiers,
		Fetched:      result.Report.Count(batch.StatusFetched),
		Empty:        result.Report.Count(batch.StatusEmpty),
		Failed:       result.Report.Count(batch.StatusFailed),
		Collisions:   result.Report.Count(batch.StatusCollision),
		ArtifactPath: result.ArtifactPath,
	}
	if result.Err != nil {
		entry.Status = history.StatusFailed
		entry.Error = result.Err.Error()
	}
	if err := r.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from `avatarmap history`"),
		)
	}
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, summary Summary) {
	ctx = context.WithoutCancel(ctx)
	for _, src := range summary.Sources {
		if src.Err == nil {
			continue
		}
		if err := r.notifier.NotifySourceFailed(ctx, src.Name, src.Err); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.String(logging.FieldSource, src.Name),
				logging.Error(err),
			)
		}
	}
	if err := r.notifier.NotifyRunCompleted(ctx, len(summary.Sources), summary.Written(), summary.Failed(), summary.Duration); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed", logging.Error(err))
	}
}

func hintFor(err error) string {
	switch failure.Kind(err) {
	case "invalid_input":
		return "check the source's input files under paths.data_dir"
	case "filesystem":
		return "check permissions on paths.cache_dir and paths.mapping_dir"
	case "configuration":
		return "run `avatarmap config validate`"
	case "canceled":
		return "run was interrupted; rerun to regenerate the artifact"
	default:
		return "check logs for details"
	}
}
