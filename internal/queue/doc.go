// Package queue persists migration queue items in SQLite and owns every status
// transition.
//
// The database file doubles as the durable queue snapshot: each structural
// mutation commits before the call returns, and Open combined with
// ResetStuckProcessing recovers a crashed daemon by demoting items left in
// processing back to pending. Claiming the next pending item and marking it
// processing happen inside one transaction, which is what keeps concurrent
// dispatch workers from double-claiming.
package queue
