package session

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline session.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

var allStatuses = []Status{
	StatusInitialized,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusInterrupted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known session statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition may leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	default:
		return false
	}
}

// IsActive reports whether the session still owns its workspace.
func (s Status) IsActive() bool {
	return s == StatusInitialized || s == StatusRunning
}

// StageStatus represents the lifecycle of one selected stage within a session.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

var stageStatusSet = map[StageStatus]struct{}{
	StagePending:   {},
	StageRunning:   {},
	StageCompleted: {},
	StageFailed:    {},
	StageSkipped:   {},
}

// ParseStageStatus converts a string into a known StageStatus.
func ParseStageStatus(value string) (StageStatus, bool) {
	normalized := StageStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the stage reached a final per-stage state.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// StageState records the progress of one selected stage.
type StageState struct {
	Index     int
	Name      string
	Status    StageStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	OutputRef string
	Error     string
}

// Session represents one end-to-end execution attempt persisted in SQLite.
// Stages holds one entry per selected stage, ordered by index.
type Session struct {
	ID            string
	WorkspaceRoot string
	SourceInput   string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Stages        []StageState
}

// SelectedStages returns the ordered stage indices this session executes.
func (s *Session) SelectedStages() []int {
	out := make([]int, len(s.Stages))
	for i, st := range s.Stages {
		out[i] = st.Index
	}
	return out
}

// Stage returns the state for a selected stage index.
func (s *Session) Stage(index int) (StageState, bool) {
	for _, st := range s.Stages {
		if st.Index == index {
			return st, true
		}
	}
	return StageState{}, false
}

// DatabaseHealth captures diagnostic information about the session database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalSessions    int
	Error            string
}
