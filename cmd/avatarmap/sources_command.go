package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"avatarmap/internal/collector"
	"avatarmap/internal/config"
	"avatarmap/internal/inputs"
	"avatarmap/internal/logging"
)

type sourceJSON struct {
	Name        string   `json:"name"`
	Resolution  string   `json:"resolution"`
	Inputs      []string `json:"inputs"`
	Identifiers int      `json:"identifiers"`
	WithImage   int      `json:"with_image"`
	Error       string   `json:"error,omitempty"`
}

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and how many identifiers each yields",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			items := make([]sourceJSON, 0, len(cfg.Sources))
			for _, src := range cfg.Sources {
				items = append(items, describeSource(cfg, src))
			}

			if jsonOutput {
				return writeJSON(cmd, items)
			}

			spec := tableSpec{
				headers: []string{"Source", "Image", "Inputs", "Identifiers", "With image", "Status"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			}
			for _, item := range items {
				status := "ok"
				if item.Error != "" {
					status = item.Error
				}
				spec.add(item.Name, item.Resolution, strconv.Itoa(len(item.Inputs)),
					strconv.Itoa(item.Identifiers), strconv.Itoa(item.WithImage), status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, spec.render(isTerminal(out)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print sources as JSON")
	return cmd
}

func describeSource(cfg *config.Config, src config.Source) sourceJSON {
	item := sourceJSON{Name: src.Name}
	if src.ImageTemplate != "" {
		item.Resolution = "template " + src.ImageTemplate
	} else {
		item.Resolution = "field " + src.ImageField
	}
	for _, input := range src.Inputs {
		label := input.Path + ":" + input.Field
		if input.FilterField != "" {
			label += fmt.Sprintf(" [%s=%s]", input.FilterField, input.FilterValue)
		}
		item.Inputs = append(item.Inputs, label)
	}

	entries, err := inputs.Load(cfg.Paths.DataDir, src, logging.NewNop())
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Identifiers = len(entries)
	item.WithImage = countWithImage(entries)
	return item
}

func countWithImage(entries []collector.Entry) int {
	n := 0
	for _, entry := range entries {
		if entry.ImageURL != "" {
			n++
		}
	}
	return n
}
