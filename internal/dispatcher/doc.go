// Package dispatcher coordinates concurrent processing of queued migrations.
//
// A Manager drains pending items through the pipeline under a resizable permit
// pool, so at most the configured number of migrations run at once. Runs are
// started with ProcessAll and tracked through the returned Run handle; Pause
// and Resume gate the starting of new items without touching the ones already
// in flight. Per-item failures never abort a run.
package dispatcher
