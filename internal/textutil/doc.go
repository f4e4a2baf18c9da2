// Package textutil provides text normalization helpers shared by the
// collector, fetch, and config packages.
//
// The primary use cases are:
//   - Folding identifiers to a canonical lowercase key for deduplication
//   - Deriving filesystem-safe slugs used as cache file names and mapping keys
//
// Slugs are transliterated with Unicode NFKD decomposition so accented Latin
// letters keep their base letter; input with no ASCII residue falls back to a
// short content hash so distinct identifiers never share a slug.
package textutil
