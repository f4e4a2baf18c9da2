package collector

import (
	"sort"
	"strings"

	"avatarmap/internal/textutil"
)

// Entry is one deduplicated identifier within a source.
type Entry struct {
	// Key is the canonical lowercase form used for deduplication.
	Key string `json:"key"`
	// Name is the first-seen display form of the identifier.
	Name string `json:"name"`
	// ImageURL is the first non-empty image URL seen for Key.
	ImageURL string `json:"image_url,omitempty"`
}

// Set accumulates identifiers for one source. The zero value is not usable;
// call NewSet.
type Set struct {
	entries map[string]*Entry
}

// NewSet returns an empty identifier set.
func NewSet() *Set {
	return &Set{entries: make(map[string]*Entry)}
}

// Add records name with an optional image URL. It reports whether name
// introduced a new key. Blank names are ignored.
func (s *Set) Add(name, imageURL string) bool {
	name = strings.TrimSpace(name)
	key := textutil.FoldKey(name)
	if key == "" {
		return false
	}
	imageURL = strings.TrimSpace(imageURL)

	if existing, ok := s.entries[key]; ok {
		if existing.ImageURL == "" && imageURL != "" {
			existing.ImageURL = imageURL
		}
		return false
	}
	s.entries[key] = &Entry{Key: key, Name: name, ImageURL: imageURL}
	return true
}

// AddAll records every name in names without image URLs.
func (s *Set) AddAll(names ...string) {
	for _, name := range names {
		s.Add(name, "")
	}
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	return len(s.entries)
}

// Entries returns the collected identifiers sorted by key.
func (s *Set) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Collect builds sorted, deduplicated entries from zero or more raw lists.
// Nil and empty lists contribute nothing.
func Collect(lists ...[]string) []Entry {
	set := NewSet()
	for _, list := range lists {
		set.AddAll(list...)
	}
	return set.Entries()
}

// ResolveImages fills ImageURL for every entry using resolve, which receives
// the canonical key. Entries that already carry a URL are left untouched.
func ResolveImages(entries []Entry, resolve func(key string) string) []Entry {
	if resolve == nil {
		return entries
	}
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		if entry.ImageURL == "" {
			entry.ImageURL = strings.TrimSpace(resolve(entry.Key))
		}
		out[i] = entry
	}
	return out
}
