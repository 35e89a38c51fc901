// Package api defines the transport-level types shared by the HTTP control
// API, the IPC surface, and the CLI. Conversions from domain types normalize
// timestamps to RFC3339Nano UTC strings so payloads round-trip cleanly over
// JSON.
package api
