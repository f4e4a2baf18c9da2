package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"avatarmap/internal/collector"
	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/inputs"
)

// Definition describes one source pipeline: its name and how to obtain its
// deduplicated identifiers with their image URLs.
type Definition struct {
	Name    string
	Collect func(ctx context.Context) ([]collector.Entry, error)
}

// StaticDefinition returns a Definition whose entries are fixed.
func StaticDefinition(name string, entries []collector.Entry) Definition {
	return Definition{
		Name: name,
		Collect: func(context.Context) ([]collector.Entry, error) {
			return entries, nil
		},
	}
}

// DefinitionsFromConfig builds definitions for the configured sources. When
// names is non-empty only those sources are returned, in configuration
// order; an unknown name is a configuration error.
func DefinitionsFromConfig(cfg *config.Config, logger *slog.Logger, names ...string) ([]Definition, error) {
	selected := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := cfg.Source(name); !ok {
			return nil, failure.Wrap(failure.ErrConfiguration, name, "select source", "unknown source; see `avatarmap sources`", nil)
		}
		selected[name] = true
	}

	defs := make([]Definition, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if len(selected) > 0 && !selected[src.Name] {
			continue
		}
		defs = append(defs, Definition{
			Name: src.Name,
			Collect: func(context.Context) ([]collector.Entry, error) {
				return inputs.Load(cfg.Paths.DataDir, src, logger)
			},
		})
	}
	return defs, nil
}
