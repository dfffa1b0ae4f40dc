// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides console and JSON handlers, attribute helpers, standardized field
// names, and context-derived fields (item id, stage, correlation id) so log
// lines stay consistent between the dispatcher, the pipeline, and IPC.
package logging
