// Package workspace resolves the on-disk directory for one episode and owns
// its layout convention. Each workspace holds one unit of input and the
// artifacts every pipeline stage produces for it; the engine uses output
// discovery here to decide when a stage can be skipped.
package workspace
