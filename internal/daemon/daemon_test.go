package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"showrunner/internal/config"
	"showrunner/internal/daemon"
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

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Engine.EventBufferSize)
	eng := engine.New(cfg, store, bus, okStages())
	t.Cleanup(eng.Stop)

	d, err := daemon.New(cfg, store, eng, bus, logging.NewNop(), "", nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func waitTerminal(t *testing.T, d *daemon.Daemon, id string) *session.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := d.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Status.IsTerminal() {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for terminal status")
	return nil
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status after Start")
	}
	if status.PID <= 0 {
		t.Fatalf("PID = %d", status.PID)
	}
	if status.LockFilePath == "" || status.SessionDBPath == "" {
		t.Fatalf("missing paths in status: %+v", status)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected stopped status after Stop")
	}
}

func TestDaemonSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	t.Cleanup(first.Stop)

	second := newDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second Start to fail while lock is held")
	}
}

func TestDaemonRunSessionDefaultsToAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	id, err := d.RunSession(context.Background(), "https://example.com/talk", "", nil)
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	sess := waitTerminal(t, d, id)
	if sess.Status != session.StatusCompleted {
		t.Fatalf("status = %s", sess.Status)
	}
	if len(sess.Stages) != stage.Count() {
		t.Fatalf("stage count = %d, want %d", len(sess.Stages), stage.Count())
	}
}

func TestDaemonListSessionsActiveFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	id, err := d.RunSession(context.Background(), "https://example.com/talk", "", []int{1})
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	waitTerminal(t, d, id)

	sessions, err := d.ListSessions(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("session count = %d", len(sessions))
	}
	if sessions[0].ID != id {
		t.Fatalf("session id = %s", sessions[0].ID)
	}

	filtered, err := d.ListSessions(context.Background(), []session.Status{session.StatusFailed})
	if err != nil {
		t.Fatalf("ListSessions filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("filtered count = %d", len(filtered))
	}
}

func TestDaemonStopSessionValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	if err := d.StopSession(context.Background(), ""); err == nil {
		t.Fatal("expected validation error for empty session id")
	}
}

func TestDaemonRequestShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.SetShutdown(cancel)

	d.RequestShutdown()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown did not cancel the run context")
	}
}
