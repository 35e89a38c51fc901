// Package notifications delivers session lifecycle events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The engine depends only on the small Service interface, so
// alternative transports slot in without touching orchestration code.
package notifications
