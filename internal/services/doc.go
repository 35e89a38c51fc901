// Package services holds the error taxonomy and context plumbing shared by
// stage implementations and the execution engine.
//
// Errors are classified by wrapping them with one of the exported sentinel
// markers so callers can branch with errors.Is without string matching. The
// context helpers carry session, stage, and request identifiers so log lines
// emitted deep inside a stage still name the work they belong to.
package services
