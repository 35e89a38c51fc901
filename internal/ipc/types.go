package ipc

import "showrunner/internal/api"

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse acknowledges a ping.
type PingResponse struct {
	Message string `json:"message"`
}

// StatusRequest asks for daemon runtime information.
type StatusRequest struct{}

// StatusResponse reports daemon runtime information. SystemChecks and
// Summary are filled client-side by daemonctl when rendering status.
type StatusResponse struct {
	Running        bool                   `json:"running"`
	PID            int                    `json:"pid"`
	SessionDBPath  string                 `json:"session_db_path"`
	LockPath       string                 `json:"lock_path"`
	ActiveSessions int                    `json:"active_sessions"`
	SessionStats   map[string]int         `json:"session_stats"`
	Dependencies   []api.DependencyStatus `json:"dependencies,omitempty"`
	SystemChecks   []api.StatusLine       `json:"system_checks,omitempty"`
	Summary        api.DependencySummary  `json:"dependency_summary,omitempty"`
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

// GetSessionRequest looks up one session by ID.
type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

// GetSessionResponse carries the session snapshot.
type GetSessionResponse struct {
	Session api.SessionSnapshot `json:"session"`
}

// ListSessionsRequest lists sessions, optionally filtered by status names.
type ListSessionsRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// ListSessionsResponse carries session snapshots, active sessions first.
type ListSessionsResponse struct {
	Sessions []api.SessionSnapshot `json:"sessions"`
}

// StopSessionRequest asks a running session to stop at the next stage
// boundary.
type StopSessionRequest struct {
	SessionID string `json:"session_id"`
}

// StopSessionResponse acknowledges a stop request.
type StopSessionResponse struct {
	Stopped bool `json:"stopped"`
}

// StopDaemonRequest asks the daemon process to shut down.
type StopDaemonRequest struct{}

// StopDaemonResponse acknowledges daemon shutdown.
type StopDaemonResponse struct {
	Stopped bool `json:"stopped"`
}

// LogTailRequest reads daemon log lines. Offset -1 requests the last Limit
// lines; Follow with WaitMillis long-polls for new output.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse carries log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
