package preflight

import (
	"log/slog"

	"avatarmap/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks followed by one input check per
// configured source.
func RunAll(cfg *config.Config, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Data directory", cfg.Paths.DataDir),
		CheckWritableTarget("Cache directory", cfg.Paths.CacheDir),
		CheckWritableTarget("Mapping directory", cfg.Paths.MappingDir),
		CheckWritableTarget("State directory", cfg.Paths.StateDir),
	}
	for _, src := range cfg.Sources {
		results = append(results, CheckSourceInputs(cfg.Paths.DataDir, src, logger))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
