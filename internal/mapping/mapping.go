package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"avatarmap/internal/failure"
	"avatarmap/internal/fetch"
	"avatarmap/internal/fileutil"
)

// Mapping associates a resolved name with the files cached for it.
type Mapping map[string][]fetch.File

// Keys returns the mapping keys in ascending order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Encode renders m in artifact form. A nil or empty mapping encodes as {}.
func Encode(m Mapping) ([]byte, error) {
	if m == nil {
		m = Mapping{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode mapping: %w", err)
	}
	return buf.Bytes(), nil
}

// ArtifactPath returns the artifact location for source under dir.
func ArtifactPath(dir, source string) string {
	return filepath.Join(dir, source+".json")
}

// Write replaces the artifact for source under dir and returns its path.
func Write(dir, source string, m Mapping) (string, error) {
	data, err := Encode(m)
	if err != nil {
		return "", failure.Wrap(failure.ErrFilesystem, source, "encode mapping", "", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure.Wrap(failure.ErrFilesystem, source, "create mapping dir", dir, err)
	}
	path := ArtifactPath(dir, source)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", failure.Wrap(failure.ErrFilesystem, source, "write mapping", path, err)
	}
	return path, nil
}

// Load reads an artifact. A missing file returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Load(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := Mapping{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", path, err)
	}
	return m, nil
}

// Merge returns next extended with every key of prev that next lacks.
// Entries present in both come from next.
func Merge(prev, next Mapping) Mapping {
	out := make(Mapping, len(prev)+len(next))
	for key, files := range prev {
		out[key] = files
	}
	for key, files := range next {
		out[key] = files
	}
	return out
}
