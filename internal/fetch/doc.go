// Package fetch downloads one identifier's avatar, scales it to the
// configured width, and writes it into the per-source cache directory.
//
// Fetcher.Fetch performs a single attempt. FetchWithRetry repeats a failed
// attempt exactly once unless the failure cannot succeed on a second try
// (an unsupported URL scheme or context cancellation). Identifiers without an
// image URL succeed immediately with no files and no network traffic.
//
// Outbound requests share one rate limiter across every source so a run
// never exceeds the configured request rate regardless of how many source
// pipelines are active.
package fetch
