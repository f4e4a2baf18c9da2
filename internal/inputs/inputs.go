package inputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"avatarmap/internal/collector"
	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/logging"
	"avatarmap/internal/textutil"
)

// record is one JSON object from an input document.
type record map[string]any

// Load collects the identifiers for src from documents under dataDir.
// A missing literal input or a malformed document fails the whole source.
func Load(dataDir string, src config.Source, logger *slog.Logger) ([]collector.Entry, error) {
	logger = logging.NewComponentLogger(logger, "inputs").With(logging.String(logging.FieldSource, src.Name))

	set := collector.NewSet()
	for _, input := range src.Inputs {
		paths, err := resolvePaths(dataDir, input)
		if err != nil {
			return nil, failure.Wrap(failure.ErrInvalidInput, src.Name, "resolve input", input.Path, err)
		}
		for _, path := range paths {
			records, err := readRecords(path)
			if err != nil {
				return nil, failure.Wrap(failure.ErrInvalidInput, src.Name, "read input", path, err)
			}
			added := 0
			for _, rec := range records {
				if !matches(input, rec) {
					continue
				}
				name, ok := rec.str(input.Field)
				if !ok {
					continue
				}
				image := ""
				if src.ImageField != "" {
					image, _ = rec.str(src.ImageField)
				}
				if set.Add(name, image) {
					added++
				}
			}
			logger.Debug("input loaded",
				logging.String("path", path),
				logging.Int("records", len(records)),
				logging.Int("new_identifiers", added),
			)
		}
	}

	entries := set.Entries()
	if src.ImageTemplate != "" {
		entries = collector.ResolveImages(entries, func(key string) string {
			return ExpandTemplate(src.ImageTemplate, key)
		})
	}
	return entries, nil
}

// ExpandTemplate substitutes the path-escaped identifier into template.
func ExpandTemplate(template, key string) string {
	return strings.ReplaceAll(template, config.TemplatePlaceholder, url.PathEscape(key))
}

func resolvePaths(dataDir string, input config.Input) ([]string, error) {
	pattern := input.Path
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dataDir, pattern)
	}
	if !isGlob(input.Path) {
		info, err := os.Stat(pattern)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && input.Optional {
				return nil, nil
			}
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", pattern)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithCaseInsensitive(), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// readRecords decodes a document holding either one object or an array of
// objects. Non-object array elements are ignored.
func readRecords(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	switch v := doc.(type) {
	case map[string]any:
		return []record{v}, nil
	case []any:
		out := make([]record, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected object or array, got %T", doc)
	}
}

// matches applies the input's filter, comparing values case-insensitively.
// Inputs without a filter accept every record.
func matches(input config.Input, rec record) bool {
	if input.FilterField == "" {
		return true
	}
	value, ok := rec.str(input.FilterField)
	if !ok {
		return false
	}
	return textutil.FoldKey(value) == textutil.FoldKey(input.FilterValue)
}

func (r record) str(field string) (string, bool) {
	raw, ok := r[field]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
