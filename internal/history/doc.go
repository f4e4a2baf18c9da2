// Package history persists a row per source per run in a SQLite database
// under the state directory, so `avatarmap history` can show what recent
// runs fetched, skipped, and failed.
//
// The database uses WAL journaling and a busy timeout, and writes retry with
// backoff when another process holds the lock. The schema is embedded and
// versioned; a database with a different version is rejected rather than
// migrated.
package history
