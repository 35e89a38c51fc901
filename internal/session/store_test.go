package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"showrunner/internal/services"
	"showrunner/internal/session"
	"showrunner/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ws := filepath.Join(cfg.Paths.WorkspaceDir, "episode-1")
	sess := testsupport.NewSession(t, store, ws, "https://example.com/v/1", []int{1, 2, 3})

	fetched, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != session.StatusInitialized {
		t.Fatalf("unexpected status: %s", fetched.Status)
	}
	if fetched.WorkspaceRoot != ws {
		t.Fatalf("unexpected workspace: %s", fetched.WorkspaceRoot)
	}
	if len(fetched.Stages) != 3 {
		t.Fatalf("expected 3 stage rows, got %d", len(fetched.Stages))
	}
	for i, st := range fetched.Stages {
		if st.Index != i+1 {
			t.Fatalf("stage %d has index %d", i, st.Index)
		}
		if st.Status != session.StagePending {
			t.Fatalf("stage %d not pending: %s", st.Index, st.Status)
		}
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Get(context.Background(), "no-such-session")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveWorkspaceUniqueness(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ws := filepath.Join(cfg.Paths.WorkspaceDir, "episode-dup")
	testsupport.NewSession(t, store, ws, "input", []int{1, 2})

	second := session.New(ws, "input", []int{1, 2})
	err := store.Create(ctx, second)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	active, err := store.ActiveForWorkspace(ctx, ws)
	if err != nil {
		t.Fatalf("ActiveForWorkspace failed: %v", err)
	}
	if active == nil {
		t.Fatal("expected an active session")
	}
}

func TestWorkspaceReusableAfterTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ws := filepath.Join(cfg.Paths.WorkspaceDir, "episode-reuse")
	first := testsupport.NewSession(t, store, ws, "input", []int{1})

	if err := store.UpdateStatus(ctx, first.ID, session.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	second := session.New(ws, "input", []int{1})
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("expected create to succeed after terminal session: %v", err)
	}
}

func TestUpdateStageState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ws := filepath.Join(cfg.Paths.WorkspaceDir, "episode-2")
	sess := testsupport.NewSession(t, store, ws, "input", []int{1, 2})

	started := time.Now().UTC()
	state, _ := sess.Stage(1)
	state.Status = session.StageRunning
	state.StartedAt = &started
	if err := store.UpdateStageState(ctx, sess.ID, state); err != nil {
		t.Fatalf("UpdateStageState failed: %v", err)
	}

	ended := time.Now().UTC()
	state.Status = session.StageCompleted
	state.EndedAt = &ended
	state.OutputRef = filepath.Join(ws, "media", "source.mp4")
	if err := store.UpdateStageState(ctx, sess.ID, state); err != nil {
		t.Fatalf("UpdateStageState failed: %v", err)
	}

	fetched, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, ok := fetched.Stage(1)
	if !ok {
		t.Fatal("stage 1 missing")
	}
	if got.Status != session.StageCompleted {
		t.Fatalf("unexpected stage status: %s", got.Status)
	}
	if got.OutputRef == "" || got.StartedAt == nil || got.EndedAt == nil {
		t.Fatalf("stage state not fully recorded: %+v", got)
	}
	if !fetched.UpdatedAt.After(fetched.CreatedAt) {
		t.Fatal("expected session updated_at to advance with stage updates")
	}
}

func TestUpdateStageStateUnknownStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	sess := testsupport.NewSession(t, store, filepath.Join(cfg.Paths.WorkspaceDir, "episode-3"), "input", []int{1})

	err := store.UpdateStageState(ctx, sess.ID, session.StageState{Index: 5, Status: session.StageRunning})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unselected stage, got %v", err)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	running := testsupport.NewSession(t, store, filepath.Join(cfg.Paths.WorkspaceDir, "ep-running"), "input", []int{1, 2})
	if err := store.UpdateStatus(ctx, running.ID, session.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	done := testsupport.NewSession(t, store, filepath.Join(cfg.Paths.WorkspaceDir, "ep-done"), "input", []int{1})
	if err := store.UpdateStatus(ctx, done.ID, session.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	ids, err := store.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != running.ID {
		t.Fatalf("unexpected recovered ids: %v", ids)
	}

	recovered, err := store.Get(ctx, running.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if recovered.Status != session.StatusInterrupted {
		t.Fatalf("expected interrupted, got %s", recovered.Status)
	}

	untouched, err := store.Get(ctx, done.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if untouched.Status != session.StatusCompleted {
		t.Fatalf("terminal session mutated: %s", untouched.Status)
	}
}

func TestListActiveAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewSession(t, store, filepath.Join(cfg.Paths.WorkspaceDir, "ep-a"), "input", []int{1})
	b := testsupport.NewSession(t, store, filepath.Join(cfg.Paths.WorkspaceDir, "ep-b"), "input", []int{1})
	if err := store.UpdateStatus(ctx, b.ID, session.StatusFailed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("unexpected active set: %#v", active)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[session.StatusInitialized] != 1 || stats[session.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := session.ParseStatus(" Running "); !ok || status != session.StatusRunning {
		t.Fatalf("unexpected parse result: %v %v", status, ok)
	}
	if _, ok := session.ParseStatus("bogus"); ok {
		t.Fatal("expected parse failure")
	}
	if !session.StatusFailed.IsTerminal() || session.StatusRunning.IsTerminal() {
		t.Fatal("terminal classification wrong")
	}
}
