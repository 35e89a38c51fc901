// Package llm talks to an OpenRouter-compatible chat completion API for the
// content analysis and narrative generation stages. Requests are JSON-only
// with retry/backoff for transient failures; DecodeJSON tolerates the usual
// model formatting quirks.
package llm
