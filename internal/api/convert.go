package api

import (
	"errors"
	"net/http"
	"time"

	"showrunner/internal/logging"
	"showrunner/internal/services"
	"showrunner/internal/session"
)

// FromSession converts a persisted session into its transport snapshot.
func FromSession(sess *session.Session) SessionSnapshot {
	if sess == nil {
		return SessionSnapshot{}
	}
	snapshot := SessionSnapshot{
		SessionID:     sess.ID,
		WorkspaceRoot: sess.WorkspaceRoot,
		SourceInput:   sess.SourceInput,
		Status:        string(sess.Status),
		CreatedAt:     formatTime(sess.CreatedAt),
		UpdatedAt:     formatTime(sess.UpdatedAt),
		Stages:        make([]StageSnapshot, 0, len(sess.Stages)),
	}
	done := 0
	for _, st := range sess.Stages {
		if st.Status.IsTerminal() {
			done++
		}
		snapshot.Stages = append(snapshot.Stages, StageSnapshot{
			Index:     st.Index,
			Name:      st.Name,
			Status:    string(st.Status),
			StartedAt: formatTimePtr(st.StartedAt),
			EndedAt:   formatTimePtr(st.EndedAt),
			OutputRef: st.OutputRef,
			Error:     st.Error,
		})
	}
	if len(sess.Stages) > 0 {
		snapshot.ProgressPercent = float64(done) / float64(len(sess.Stages)) * 100
	}
	return snapshot
}

// FromSessions converts a slice of sessions, skipping nil entries.
func FromSessions(sessions []*session.Session) []SessionSnapshot {
	out := make([]SessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		out = append(out, FromSession(sess))
	}
	return out
}

// FromLogEvents converts hub log events into transport log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     evt.Timestamp,
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			SessionID:     evt.SessionID,
			Stage:         evt.Stage,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

// HTTPStatus maps service error markers to HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeFormat)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}
