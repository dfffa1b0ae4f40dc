// Package main hosts the Convoy CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, with direct queue database access as a fallback for
// read and maintenance operations when the daemon is not running. It
// centralizes configuration resolution and socket discovery so subcommands
// can focus on user experience instead of wiring.
package main
