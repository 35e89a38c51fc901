// Package progress fans structured pipeline events out to live subscribers.
// Delivery is best effort: each subscriber owns a bounded buffer and a slow
// reader loses its oldest events rather than stalling the execution engine.
// The session store remains the authoritative record; reconnecting clients
// re-read a snapshot before resubscribing.
package progress
