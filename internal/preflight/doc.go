// Package preflight runs environment readiness checks: external binary
// availability, directory access, the LLM endpoint, and the configured TTS
// voice model. The daemon and the CLI status command share these checks.
package preflight
