// Package engine runs pipeline sessions. Each session gets a dedicated
// worker goroutine that executes its selected stages strictly in order,
// persisting every transition to the session store and publishing progress
// events as it goes. Failures are fail-fast: a later stage has no valid input
// once an earlier one fails. Stop requests are cooperative and honored only
// at stage boundaries, because stage bodies are opaque and may wrap external
// subprocesses that cannot be preempted safely.
package engine
