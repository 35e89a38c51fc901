// Package daemon hosts the long-running showrunner process: it guards
// single-instance execution with a file lock, owns the execution engine and
// session store, and serves the HTTP control API including the per-session
// SSE event stream.
package daemon
