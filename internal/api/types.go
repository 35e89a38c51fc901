package api

import "time"

// timeFormat is used for all timestamps in API payloads.
const timeFormat = time.RFC3339Nano

// StageSnapshot describes one selected stage of a session in a
// transport-friendly format.
type StageSnapshot struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt,omitempty"`
	EndedAt   string `json:"endedAt,omitempty"`
	OutputRef string `json:"outputRef,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionSnapshot describes a pipeline session and all of its stage states.
type SessionSnapshot struct {
	SessionID       string          `json:"sessionId"`
	WorkspaceRoot   string          `json:"workspaceRoot"`
	SourceInput     string          `json:"sourceInput,omitempty"`
	Status          string          `json:"status"`
	ProgressPercent float64         `json:"progressPercent"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
	Stages          []StageSnapshot `json:"stages"`
}

// RunSessionRequest submits a new pipeline run.
type RunSessionRequest struct {
	Input          string `json:"input,omitempty"`
	Workspace      string `json:"workspace,omitempty"`
	SelectedStages []int  `json:"selected_stages"`
}

// RunSessionResponse acknowledges an accepted run.
type RunSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SessionResponse wraps a single session snapshot.
type SessionResponse struct {
	Session SessionSnapshot `json:"session"`
}

// SessionListResponse wraps a collection of session snapshots.
type SessionListResponse struct {
	Sessions []SessionSnapshot `json:"sessions"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusLine is a labeled severity/detail pair rendered by the CLI status view.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	SessionDBPath  string             `json:"sessionDbPath"`
	LockFilePath   string             `json:"lockFilePath"`
	ActiveSessions int                `json:"activeSessions"`
	SessionStats   map[string]int     `json:"sessionStats"`
	Dependencies   []DependencyStatus `json:"dependencies"`
	SystemChecks   []StatusLine       `json:"systemChecks,omitempty"`
	Summary        DependencySummary  `json:"dependencySummary,omitempty"`
}

// LogEvent mirrors a structured daemon log record for transport.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse wraps a log fetch result. Next is the cursor to pass as
// since on the following request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
