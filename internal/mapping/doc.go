// Package mapping serializes the identifier to cached-file mapping for one
// source and replaces its artifact on disk.
//
// Artifacts are JSON objects with keys in ascending order, two-space
// indentation, unescaped HTML characters, and a trailing newline, so two runs
// over identical inputs produce byte-identical files.
package mapping
