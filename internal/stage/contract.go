package stage

import "context"

// Request carries everything a stage function receives from the engine.
type Request struct {
	SessionID     string
	WorkspaceRoot string
	// Input is the previous stage's output reference, or the session's
	// original source input for the first selected stage.
	Input string
}

// RunFunc is the uniform contract every concrete stage implementation
// conforms to, regardless of the external tool or service it drives. The
// returned output reference is persisted as the stage's artifact and handed
// to the next selected stage as its input.
type RunFunc func(ctx context.Context, req Request) (outputRef string, err error)

// Set binds registry indices to runner implementations. The engine refuses to
// execute a selected stage with no binding.
type Set map[int]RunFunc
