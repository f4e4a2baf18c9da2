// Package failure classifies pipeline errors.
//
// Errors are tagged with one of the exported sentinel markers so callers can
// decide with errors.Is whether a failure is contained to one identifier
// (transient, unsupported URL) or aborts a whole source (configuration,
// invalid input, filesystem). Wrap builds messages that carry the source and
// operation so log lines and CLI output read the same way everywhere.
package failure
