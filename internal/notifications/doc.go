// Package notifications delivers queue lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. BusHooks adapts a Service into event bus hooks so notification
// delivery rides the same observer path as every other listener; send errors
// are logged and never disturb dispatch.
package notifications
