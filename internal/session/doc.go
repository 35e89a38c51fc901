// Package session persists pipeline sessions and their per-stage state in
// SQLite. The store is the authoritative record of execution: the engine
// mutates it at every stage transition, observers read snapshots from it, and
// startup recovery marks sessions left active by a crashed process as
// interrupted.
package session
