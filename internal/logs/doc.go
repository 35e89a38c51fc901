// Package logs reads daemon log output for the CLI: file-based tailing with
// optional follow for the IPC path, and an HTTP client for the daemon's
// /api/logs stream endpoint.
package logs
