package fetch

import (
	"context"
	"time"

	"avatarmap/internal/failure"
	"avatarmap/internal/logging"
)

// FetchWithRetry runs Fetch and, when the first attempt fails with a
// retryable error, waits RetryDelay and tries exactly once more. The
// returned error is the last attempt's.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req Request) (Result, error) {
	files, err := f.Fetch(ctx, req)
	if err == nil {
		return Result{Files: files, Attempts: 1}, nil
	}
	if !failure.Retryable(err) || ctx.Err() != nil {
		return Result{Attempts: 1}, err
	}

	logging.WarnWithContext(f.logger, "fetch failed, retrying", "fetch_retry",
		logging.String(logging.FieldSource, req.Source),
		logging.String(logging.FieldIdentifier, req.Identifier),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "transient network or image error; retrying once"),
		logging.String(logging.FieldImpact, "none if the retry succeeds"),
	)

	if err := sleep(ctx, f.opts.RetryDelay); err != nil {
		return Result{Attempts: 1}, err
	}

	files, err = f.Fetch(ctx, req)
	if err != nil {
		return Result{Attempts: 2}, err
	}
	return Result{Files: files, Attempts: 2}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
