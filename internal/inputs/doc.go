// Package inputs reads the local JSON documents declared by a source's
// [[sources.inputs]] entries and turns them into collector entries.
//
// Each input names a path relative to the data directory (literal or a
// case-insensitive doublestar glob), the record field holding the identifier,
// and an optional role filter. The source decides how an identifier maps to
// an image URL: either a field on the same record or a URL template with an
// {id} placeholder.
package inputs
