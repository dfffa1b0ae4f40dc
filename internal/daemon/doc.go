// Package daemon coordinates the long-running convoy services and enforces
// single-instance execution.
//
// The daemon owns the queue store, the dispatcher, and the notification
// observer. Start acquires a file lock, recovers items stranded in processing
// by a previous crash, and begins watching for pending work; Stop drains the
// active batch within the configured grace period before forcing cancellation.
package daemon
