package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"showrunner/internal/api"
	"showrunner/internal/config"
	"showrunner/internal/engine"
	"showrunner/internal/logging"
	"showrunner/internal/progress"
	"showrunner/internal/session"
	"showrunner/internal/stage"
	"showrunner/internal/testsupport"
)

func okStages() stage.Set {
	set := make(stage.Set, stage.Count())
	for _, def := range stage.Definitions() {
		def := def
		set[def.Index] = func(ctx context.Context, req stage.Request) (string, error) {
			return filepath.Join(req.WorkspaceRoot, filepath.FromSlash(def.OutputPath)), nil
		}
	}
	return set
}

func newTestServer(t *testing.T) (*Daemon, *apiServer, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Engine.EventBufferSize)
	eng := engine.New(cfg, store, bus, okStages())
	t.Cleanup(eng.Stop)

	hub := logging.NewStreamHub(64)
	d, err := New(cfg, store, eng, bus, logging.NewNop(), "", hub)
	if err != nil {
		t.Fatalf("New daemon: %v", err)
	}
	srv, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	if srv == nil {
		t.Fatal("expected api server with bind configured")
	}
	return d, srv, cfg
}

func waitCompleted(t *testing.T, d *Daemon, id string) *session.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := d.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Status == session.StatusCompleted {
			return sess
		}
		if sess.Status.IsTerminal() {
			t.Fatalf("session ended %s", sess.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for completion")
	return nil
}

func TestHandleSessionsSubmitAndFetch(t *testing.T) {
	d, srv, _ := newTestServer(t)

	body := strings.NewReader(`{"input":"https://example.com/talk","selected_stages":[1,2]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", body)
	w := httptest.NewRecorder()
	srv.handleSessions(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var accepted api.RunSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.SessionID == "" {
		t.Fatal("missing session id")
	}

	waitCompleted(t, d, accepted.SessionID)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+accepted.SessionID, nil)
	w = httptest.NewRecorder()
	srv.handleSessionSubpath(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var fetched api.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if fetched.Session.Status != "completed" {
		t.Fatalf("status = %q", fetched.Session.Status)
	}
	if len(fetched.Session.Stages) != 2 {
		t.Fatalf("stage count = %d", len(fetched.Session.Stages))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w = httptest.NewRecorder()
	srv.handleSessions(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list api.SessionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Fatalf("session count = %d", len(list.Sessions))
	}
}

func TestHandleSessionsRejectsInvalidSelection(t *testing.T) {
	_, srv, _ := newTestServer(t)

	body := strings.NewReader(`{"input":"https://example.com/talk","selected_stages":[2,2]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", body)
	w := httptest.NewRecorder()
	srv.handleSessions(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleSessionUnknownID(t *testing.T) {
	_, srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/no-such-id", nil)
	w := httptest.NewRecorder()
	srv.handleSessionSubpath(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleStopTerminalSessionConflicts(t *testing.T) {
	d, srv, _ := newTestServer(t)

	id, err := d.RunSession(context.Background(), "https://example.com/talk", "", []int{1})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	waitCompleted(t, d, id)

	// The worker unregisters asynchronously after the terminal update.
	deadline := time.Now().Add(2 * time.Second)
	for d.engine.Active() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/stop", nil)
	w := httptest.NewRecorder()
	srv.handleSessionSubpath(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleSessionEventsTerminalSnapshot(t *testing.T) {
	d, srv, _ := newTestServer(t)

	id, err := d.RunSession(context.Background(), "https://example.com/talk", "", []int{1})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	waitCompleted(t, d, id)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/events", nil)
	w := httptest.NewRecorder()
	srv.handleSessionSubpath(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: snapshot") {
		t.Fatalf("missing snapshot event in %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("missing done event in %q", body)
	}
}

func TestHandleLogsTail(t *testing.T) {
	d, srv, _ := newTestServer(t)

	hub := d.LogStream()
	hub.Publish(logging.LogEvent{Level: "info", Message: "engine ready", Component: "engine"})
	hub.Publish(logging.LogEvent{Level: "warn", Message: "slow stage", Component: "engine"})

	req := httptest.NewRequest(http.MethodGet, "/api/logs?tail=1&limit=10", nil)
	w := httptest.NewRecorder()
	srv.handleLogs(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload api.LogStreamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(payload.Events) != 2 {
		t.Fatalf("event count = %d", len(payload.Events))
	}
	if payload.Next == 0 {
		t.Fatal("expected non-zero cursor")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/logs?tail=1&limit=10&level=warn", nil)
	w = httptest.NewRecorder()
	srv.handleLogs(w, req)
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode filtered logs: %v", err)
	}
	if len(payload.Events) != 1 || payload.Events[0].Message != "slow stage" {
		t.Fatalf("filtered events = %+v", payload.Events)
	}
}
