// Package stages implements the concrete pipeline stages and binds them to
// the registry. Each runner conforms to the stage function contract: take the
// previous stage's output reference, produce an artifact at the registry's
// expected workspace path, and return its absolute path.
package stages
