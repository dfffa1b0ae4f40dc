// Package events delivers queue lifecycle callbacks to registered observers.
//
// Observers register a Hooks value with a Bus; every field is optional, so a
// listener only fills in the callbacks it cares about. Delivery is synchronous
// and each callback runs behind a recover, so a misbehaving observer is logged
// and never disturbs dispatch or the other observers.
//
// Extend this package if you need asynchronous fan-out; all dispatch code
// depends only on the Bus publish methods.
package events
