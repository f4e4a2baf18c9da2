package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"avatarmap/internal/mapping"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <source>",
		Short: "Print the mapping artifact written for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.TrimSpace(args[0]))
			if _, ok := cfg.Source(name); !ok {
				return fmt.Errorf("unknown source %q (configured: %s)", args[0], strings.Join(cfg.SourceNames(), ", "))
			}

			path := mapping.ArtifactPath(cfg.Paths.MappingDir, name)
			m, err := mapping.Load(path)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no artifact for %s at %s; run `avatarmap run --source %s` first", name, path, name)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, m)
			}

			spec := tableSpec{
				headers: []string{"Name", "Size", "Files"},
				aligns:  []columnAlignment{alignLeft, alignRight, alignLeft},
				footer:  []string{fmt.Sprintf("%d entries", len(m)), "", ""},
			}
			for _, key := range m.Keys() {
				files := m[key]
				size := ""
				if len(files) > 0 {
					size = fmt.Sprintf("%dx%d", files[0].Width, files[0].Height)
				}
				paths := make([]string, 0, len(files))
				for _, file := range files {
					paths = append(paths, file.Path)
				}
				spec.add(key, size, strings.Join(paths, ", "))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, spec.render(isTerminal(out)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the artifact as JSON")
	return cmd
}
