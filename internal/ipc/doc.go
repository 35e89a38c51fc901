// Package ipc exposes daemon control over a Unix domain socket using JSON-RPC.
// The CLI is the only intended client; the surface mirrors the HTTP control
// API for machine-local use without a configured bind address.
package ipc
