// Package preflight provides readiness checks for the project directories
// and source inputs that a run depends on.
//
// The CLI "avatarmap config validate" command runs RunAll and prints each
// result. A failing check means the next run would abort at least one
// source, so the command exits non-zero.
package preflight
