// Package pipeline executes the per-item migration sequence.
//
// A Runner drives one claimed queue item through clone, transform, and
// cleanup. Cleanup always runs exactly once, even when the clone never
// produced a working directory or the item deadline expired; a timed-out item
// gets a fresh short-lived context so teardown is not starved by the expired
// one. Collaborators are plain interfaces supplied at construction, so tests
// swap in doubles without any global registry.
package pipeline
