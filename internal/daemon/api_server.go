package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"showrunner/internal/api"
	"showrunner/internal/config"
	"showrunner/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/sessions", srv.handleSessions)
	mux.HandleFunc("/api/sessions/", srv.handleSessionSubpath)
	mux.HandleFunc("/api/logs", srv.handleLogs)

	// WriteTimeout stays unset: the SSE event stream and follow-mode log
	// fetches hold their response open until the client disconnects.
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, available once start succeeds.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	depStatuses := make([]api.DependencyStatus, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		depStatuses = append(depStatuses, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	stats := make(map[string]int, len(status.SessionStats))
	for k, v := range status.SessionStats {
		stats[string(k)] = v
	}
	payload := api.DaemonStatus{
		Running:        status.Running,
		PID:            status.PID,
		SessionDBPath:  status.SessionDBPath,
		LockFilePath:   status.LockFilePath,
		ActiveSessions: status.ActiveSessions,
		SessionStats:   stats,
		Dependencies:   depStatuses,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.daemon.ListSessions(r.Context(), nil)
		if err != nil {
			s.writeError(w, api.HTTPStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
	case http.MethodPost:
		var req api.RunSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id, err := s.daemon.RunSession(r.Context(), req.Input, req.Workspace, req.SelectedStages)
		if err != nil {
			s.writeError(w, api.HTTPStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusAccepted, api.RunSessionResponse{SessionID: id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess, err := s.daemon.GetSession(r.Context(), id)
		if err != nil {
			s.writeError(w, api.HTTPStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: api.FromSession(sess)})
	case "stop":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.daemon.StopSession(r.Context(), id); err != nil {
			s.writeError(w, api.HTTPStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
	case "events":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleSessionEvents(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "session not found")
	}
}

// handleSessionEvents streams SSE: a snapshot event first, then live
// progress events, and a final done event when the session turns terminal.
func (s *apiServer) handleSessionEvents(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before reading the snapshot so no event falls between them.
	events, cancel := s.daemon.Subscribe(id)
	defer cancel()

	sess, err := s.daemon.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, api.HTTPStatus(err), err.Error())
		return
	}
	snapshot := api.FromSession(sess)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "snapshot", snapshot)
	flusher.Flush()

	if terminal(snapshot.Status) {
		writeSSE(w, "done", snapshot)
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			writeSSE(w, "progress", evt)
			flusher.Flush()
			if evt.Terminal() {
				final, err := s.daemon.GetSession(r.Context(), id)
				if err == nil {
					writeSSE(w, "done", api.FromSession(final))
					flusher.Flush()
				}
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func terminal(status string) bool {
	switch status {
	case "completed", "failed", "interrupted":
		return true
	default:
		return false
	}
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")
	component := strings.TrimSpace(query.Get("component"))
	sessionID := strings.TrimSpace(query.Get("session"))
	level := strings.TrimSpace(query.Get("level"))

	var (
		converted []api.LogEvent
		next      uint64
	)
	if tail && since == 0 && !follow {
		raw, cursor := hub.Tail(limit)
		converted = api.FromLogEvents(raw)
		next = cursor
	} else {
		raw, cursor, fetchErr := hub.Fetch(r.Context(), since, limit, follow)
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, fetchErr.Error())
			return
		}
		converted = api.FromLogEvents(raw)
		next = cursor
	}

	filtered := make([]api.LogEvent, 0, len(converted))
	for _, evt := range converted {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if sessionID != "" && sessionID != evt.SessionID {
			continue
		}
		if level != "" && !strings.EqualFold(level, evt.Level) {
			continue
		}
		filtered = append(filtered, evt)
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: filtered,
		Next:   next,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
