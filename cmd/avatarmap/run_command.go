package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"avatarmap/internal/batch"
	"avatarmap/internal/config"
	"avatarmap/internal/history"
	"avatarmap/internal/pipeline"
)

type runSourceJSON struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Identifiers int    `json:"identifiers"`
	Fetched     int    `json:"fetched"`
	Empty       int    `json:"empty"`
	Failed      int    `json:"failed"`
	Collisions  int    `json:"collisions"`
	Entries     int    `json:"entries"`
	Artifact    string `json:"artifact,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

type runJSON struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Written    int             `json:"written"`
	Failed     int             `json:"failed"`
	Sources    []runSourceJSON `json:"sources"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var sources []string
	var concurrency int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch avatars for every source and write the mapping artifacts",
		Long: "Collect identifiers from each configured source, fetch and resize their avatars into the " +
			"cache directory, and replace <mapping_dir>/<source>.json. Exits non-zero when any source aborted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") && concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			defs, err := pipeline.DefinitionsFromConfig(cfg, logger, sources...)
			if err != nil {
				return err
			}

			recorder, err := history.OpenFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer recorder.Close()

			runner := pipeline.NewRunner(pipeline.Options{
				Config:      cfg,
				Concurrency: concurrency,
				History:     recorder,
				Logger:      logger,
			})
			summary, err := runner.Run(cmd.Context(), defs)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, runSummaryJSON(summary)); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				printRunSummary(out, cfg, summary, isTerminal(out))
			}
			if summary.Failed() > 0 {
				return fmt.Errorf("%d of %d sources failed: %w", summary.Failed(), len(summary.Sources), summary.Err())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "Run only the named source (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent fetches per source (overrides fetch.concurrency)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func runSummaryJSON(summary pipeline.Summary) runJSON {
	out := runJSON{
		RunID:      summary.RunID,
		StartedAt:  summary.StartedAt.UTC(),
		DurationMS: summary.Duration.Milliseconds(),
		Written:    summary.Written(),
		Failed:     summary.Failed(),
		Sources:    make([]runSourceJSON, 0, len(summary.Sources)),
	}
	for _, src := range summary.Sources {
		item := runSourceJSON{
			Name:        src.Name,
			Status:      history.StatusSucceeded,
			Identifiers: src.Identifiers,
			Fetched:     src.Report.Count(batch.StatusFetched),
			Empty:       src.Report.Count(batch.StatusEmpty),
			Failed:      src.Report.Count(batch.StatusFailed),
			Collisions:  src.Report.Count(batch.StatusCollision),
			Entries:     src.Entries,
			Artifact:    src.ArtifactPath,
			DurationMS:  src.Duration().Milliseconds(),
		}
		if src.Err != nil {
			item.Status = history.StatusFailed
			item.Error = src.Err.Error()
		}
		out.Sources = append(out.Sources, item)
	}
	return out
}

func printRunSummary(out io.Writer, cfg *config.Config, summary pipeline.Summary, styled bool) {
	if styled {
		spec := tableSpec{
			headers: []string{"Source", "Identifiers", "Fetched", "Empty", "Failed", "Collisions", "Artifact"},
			aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
		}
		for _, src := range summary.Sources {
			artifact := displayPath(cfg, src.ArtifactPath)
			if src.Err != nil {
				artifact = "aborted"
			}
			spec.add(
				src.Name,
				strconv.Itoa(src.Identifiers),
				strconv.Itoa(src.Report.Count(batch.StatusFetched)),
				strconv.Itoa(src.Report.Count(batch.StatusEmpty)),
				strconv.Itoa(src.Report.Count(batch.StatusFailed)),
				strconv.Itoa(src.Report.Count(batch.StatusCollision)),
				artifact,
			)
		}
		fmt.Fprintln(out, spec.render(true))
	}

	fmt.Fprintf(out, "Run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	for _, src := range summary.Sources {
		switch {
		case src.Err != nil:
			fmt.Fprintln(out, renderStatusLine(src.Name, statusError, src.Err.Error(), styled))
		case src.Report.Count(batch.StatusFailed)+src.Report.Count(batch.StatusCollision) > 0:
			skipped := src.Report.Count(batch.StatusFailed) + src.Report.Count(batch.StatusCollision)
			message := fmt.Sprintf("wrote %s (%d entries, %d skipped)", displayPath(cfg, src.ArtifactPath), src.Entries, skipped)
			fmt.Fprintln(out, renderStatusLine(src.Name, statusWarn, message, styled))
		default:
			message := fmt.Sprintf("wrote %s (%d entries)", displayPath(cfg, src.ArtifactPath), src.Entries)
			fmt.Fprintln(out, renderStatusLine(src.Name, statusOK, message, styled))
		}
	}
}

// displayPath shortens path relative to the project root when possible.
func displayPath(cfg *config.Config, path string) string {
	if path == "" || cfg == nil {
		return path
	}
	if rel, err := filepath.Rel(cfg.Paths.Root, path); err == nil && !filepath.IsAbs(rel) && rel != ".." && !hasParentPrefix(rel) {
		return filepath.ToSlash(rel)
	}
	return path
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
