// Package main hosts the avatarmap CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once per invocation, builds the
// structured logger, and hands off to the internal pipeline for `run`. The
// remaining commands inspect configured sources, written artifacts, and run
// history without touching the network.
package main
