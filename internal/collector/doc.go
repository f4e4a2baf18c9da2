// Package collector gathers raw identifiers for one source into a
// deduplicated, case-insensitive set.
//
// Identifiers are folded to a lowercase key; the first casing and the first
// non-empty image URL seen for a key are retained. Blank identifiers are
// dropped silently. Entries always come back sorted by key so downstream
// fetching and artifact writing are reproducible regardless of input order.
package collector
