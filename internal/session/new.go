package session

import (
	"github.com/google/uuid"

	"showrunner/internal/stage"
)

// New builds an initialized session for a validated stage selection, with one
// pending stage state per selected index.
func New(workspaceRoot, sourceInput string, selected []int) *Session {
	sess := &Session{
		ID:            uuid.NewString(),
		WorkspaceRoot: workspaceRoot,
		SourceInput:   sourceInput,
		Status:        StatusInitialized,
		Stages:        make([]StageState, 0, len(selected)),
	}
	for _, index := range selected {
		sess.Stages = append(sess.Stages, StageState{
			Index:  index,
			Name:   stage.NameFor(index),
			Status: StagePending,
		})
	}
	return sess
}
