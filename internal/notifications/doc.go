// Package notifications publishes run outcomes to ntfy.
//
// NewService returns an ntfy-backed Service when a topic is configured and a
// no-op implementation otherwise, so the pipeline can notify unconditionally.
// Delivery failures are returned to the caller, which logs them; they never
// change a run's result.
package notifications
