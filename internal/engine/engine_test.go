package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"showrunner/internal/config"
	"showrunner/internal/engine"
	"showrunner/internal/progress"
	"showrunner/internal/services"
	"showrunner/internal/session"
	"showrunner/internal/stage"
	"showrunner/internal/testsupport"
	"showrunner/internal/workspace"
)

type recorder struct {
	mu      sync.Mutex
	invoked []int
	inputs  map[int]string
}

func newRecorder() *recorder {
	return &recorder{inputs: make(map[int]string)}
}

func (r *recorder) record(index int, input string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoked = append(r.invoked, index)
	r.inputs[index] = input
}

func (r *recorder) order() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.invoked))
	copy(out, r.invoked)
	return out
}

func (r *recorder) inputFor(index int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[index]
}

// okStages builds a stage set where every stage records its invocation and
// returns a synthetic output reference.
func okStages(rec *recorder) stage.Set {
	set := make(stage.Set, stage.Count())
	for _, def := range stage.Definitions() {
		def := def
		set[def.Index] = func(ctx context.Context, req stage.Request) (string, error) {
			rec.record(def.Index, req.Input)
			return filepath.Join(req.WorkspaceRoot, filepath.FromSlash(def.OutputPath)), nil
		}
	}
	return set
}

func newEngine(t *testing.T, cfg *config.Config, set stage.Set) (*engine.Engine, *session.Store, *progress.Bus) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Engine.EventBufferSize)
	eng := engine.New(cfg, store, bus, set)
	t.Cleanup(eng.Stop)
	return eng, store, bus
}

func waitForStatus(t *testing.T, eng *engine.Engine, id string, want session.Status) *session.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := eng.GetStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if sess.Status == want {
			return sess
		}
		if sess.Status.IsTerminal() {
			t.Fatalf("session reached %s while waiting for %s", sess.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return nil
}

func TestRunSessionAllStagesSucceed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newRecorder()
	eng, _, bus := newEngine(t, cfg, okStages(rec))

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/happy-path",
		SelectedStages: []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	sess := waitForStatus(t, eng, id, session.StatusCompleted)
	for _, st := range sess.Stages {
		if st.Status != session.StageCompleted {
			t.Fatalf("stage %d not completed: %s", st.Index, st.Status)
		}
		if st.OutputRef == "" {
			t.Fatalf("stage %d missing output ref", st.Index)
		}
		if st.StartedAt == nil || st.EndedAt == nil {
			t.Fatalf("stage %d missing timestamps", st.Index)
		}
	}
	if got := rec.order(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("stages ran out of order: %v", got)
	}
	// Stage 2 received stage 1's output.
	want := filepath.Join(sess.WorkspaceRoot, "media", "source.mp4")
	if got := rec.inputFor(2); got != want {
		t.Fatalf("stage 2 input = %q, want %q", got, want)
	}
	if bus.Dropped() != 0 {
		t.Fatalf("unexpected dropped events: %d", bus.Dropped())
	}
}

func TestFailFastStopsPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newRecorder()
	set := okStages(rec)
	set[2] = func(ctx context.Context, req stage.Request) (string, error) {
		rec.record(2, req.Input)
		return "", errors.New("whisperx exploded")
	}
	eng, _, _ := newEngine(t, cfg, set)

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/fail-fast",
		SelectedStages: []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	sess := waitForStatus(t, eng, id, session.StatusFailed)

	one, _ := sess.Stage(1)
	if one.Status != session.StageCompleted {
		t.Fatalf("stage 1 should be completed, got %s", one.Status)
	}
	two, _ := sess.Stage(2)
	if two.Status != session.StageFailed || two.Error == "" {
		t.Fatalf("stage 2 should be failed with error, got %+v", two)
	}
	three, _ := sess.Stage(3)
	if three.Status != session.StagePending {
		t.Fatalf("stage 3 should remain pending, got %s", three.Status)
	}
	for _, index := range rec.order() {
		if index == 3 {
			t.Fatal("stage 3 was invoked after stage 2 failed")
		}
	}
}

func TestSkipExistingOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := "https://example.com/videos/skip-test"
	ws, err := workspace.Resolve(cfg, input)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	testsupport.WriteFile(t, ws.Path("media/source.mp4"), 256)

	rec := newRecorder()
	eng, _, _ := newEngine(t, cfg, okStages(rec))

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{1, 2},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	sess := waitForStatus(t, eng, id, session.StatusCompleted)
	one, _ := sess.Stage(1)
	if one.Status != session.StageSkipped {
		t.Fatalf("stage 1 should be skipped, got %s", one.Status)
	}
	if one.OutputRef != ws.Path("media/source.mp4") {
		t.Fatalf("skipped stage output ref wrong: %q", one.OutputRef)
	}
	for _, index := range rec.order() {
		if index == 1 {
			t.Fatal("stage 1 was invoked despite existing output")
		}
	}
	if got := rec.inputFor(2); got != ws.Path("media/source.mp4") {
		t.Fatalf("stage 2 should receive the discovered output, got %q", got)
	}
}

func TestSkipIdempotence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := "https://example.com/videos/idempotent"
	ws, err := workspace.Resolve(cfg, input)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, def := range stage.Definitions()[:3] {
		testsupport.WriteFile(t, ws.Path(def.OutputPath), 64)
	}

	rec := newRecorder()
	eng, _, _ := newEngine(t, cfg, okStages(rec))

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	sess := waitForStatus(t, eng, id, session.StatusCompleted)
	for _, st := range sess.Stages {
		if st.Status != session.StageSkipped {
			t.Fatalf("stage %d should be skipped, got %s", st.Index, st.Status)
		}
	}
	if len(rec.order()) != 0 {
		t.Fatalf("no stage function should run, got %v", rec.order())
	}
}

func TestSingleFlightPerWorkspace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	release := make(chan struct{})
	rec := newRecorder()
	set := okStages(rec)
	set[1] = func(ctx context.Context, req stage.Request) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return filepath.Join(req.WorkspaceRoot, "media", "source.mp4"), nil
	}
	eng, _, _ := newEngine(t, cfg, set)

	input := "https://example.com/videos/single-flight"
	first, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{1},
	})
	if err != nil {
		t.Fatalf("first RunSession failed: %v", err)
	}

	_, err = eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{1},
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict for second run, got %v", err)
	}

	close(release)
	waitForStatus(t, eng, first, session.StatusCompleted)

	// Workspace is free again once the first session is terminal.
	if _, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{1},
	}); err != nil {
		t.Fatalf("expected run to succeed after terminal session: %v", err)
	}
}

func TestRequestStopAtStageBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stageTwoRunning := make(chan struct{})
	release := make(chan struct{})
	rec := newRecorder()
	set := okStages(rec)
	set[2] = func(ctx context.Context, req stage.Request) (string, error) {
		rec.record(2, req.Input)
		close(stageTwoRunning)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return filepath.Join(req.WorkspaceRoot, "transcripts", "transcript.json"), nil
	}
	eng, _, _ := newEngine(t, cfg, set)

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/stop-test",
		SelectedStages: []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	<-stageTwoRunning
	if err := eng.RequestStop(context.Background(), id); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	close(release)

	sess := waitForStatus(t, eng, id, session.StatusInterrupted)

	// The in-flight stage finished and recorded normally.
	two, _ := sess.Stage(2)
	if two.Status != session.StageCompleted || two.OutputRef == "" {
		t.Fatalf("stage 2 should complete normally before stop takes effect: %+v", two)
	}
	three, _ := sess.Stage(3)
	if three.Status != session.StagePending {
		t.Fatalf("stage 3 should remain pending, got %s", three.Status)
	}
	for _, index := range rec.order() {
		if index == 3 {
			t.Fatal("stage 3 ran after stop was requested")
		}
	}
}

func TestRequestStopUnknownSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _, _ := newEngine(t, cfg, okStages(newRecorder()))

	err := eng.RequestStop(context.Background(), "no-such-session")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestStopTerminalSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _, _ := newEngine(t, cfg, okStages(newRecorder()))

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/terminal-stop",
		SelectedStages: []int{1},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}
	waitForStatus(t, eng, id, session.StatusCompleted)

	// Wait for the worker to unregister so the stop goes through the store.
	deadline := time.Now().Add(time.Second)
	for eng.Active() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	err = eng.RequestStop(context.Background(), id)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict for terminal session, got %v", err)
	}
}

func TestValidationRejectedSynchronously(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, store, _ := newEngine(t, cfg, okStages(newRecorder()))

	cases := [][]int{
		{},
		{1, 1},
		{2, 1},
		{0},
		{1, 99},
	}
	for _, selected := range cases {
		if _, err := eng.RunSession(context.Background(), engine.RunRequest{
			Input:          "https://example.com/videos/invalid",
			SelectedStages: selected,
		}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("selection %v: expected ErrValidation, got %v", selected, err)
		}
	}

	// No session state was created for any rejected request.
	sessions, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

// lockedBuffer makes a bytes.Buffer safe for the worker goroutine to write
// while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGapSelectionWarnsAndChainsInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newRecorder()
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(cfg.Engine.EventBufferSize)

	var logs lockedBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	eng := engine.New(cfg, store, bus, okStages(rec), engine.WithLogger(logger))
	t.Cleanup(eng.Stop)

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/gap-run",
		SelectedStages: []int{1, 3},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	sess := waitForStatus(t, eng, id, session.StatusCompleted)
	if !strings.Contains(logs.String(), "selection_gap") {
		t.Fatal("expected a selection_gap warning in the logs")
	}
	// Stage 3 gets stage 1's output; the gap does not break input chaining.
	want := filepath.Join(sess.WorkspaceRoot, "media", "source.mp4")
	if got := rec.inputFor(3); got != want {
		t.Fatalf("stage 3 input = %q, want %q", got, want)
	}
}

func TestGapFirstStageResolvesEarlierOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := "https://example.com/videos/gap-resume"
	ws, err := workspace.Resolve(cfg, input)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	testsupport.WriteFile(t, ws.Path("transcripts/transcript.json"), 128)

	rec := newRecorder()
	eng, _, _ := newEngine(t, cfg, okStages(rec))

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          input,
		SelectedStages: []int{4},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	waitForStatus(t, eng, id, session.StatusCompleted)
	// Stage 3's output does not exist, so stage 4 falls back to the nearest
	// earlier discovered output: the transcript from stage 2.
	if got := rec.inputFor(4); got != ws.Path("transcripts/transcript.json") {
		t.Fatalf("stage 4 input = %q, want transcript path", got)
	}
}

func TestStageTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageTimeout(1))
	rec := newRecorder()
	set := okStages(rec)
	set[1] = func(ctx context.Context, req stage.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	eng, _, _ := newEngine(t, cfg, set)

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/timeout",
		SelectedStages: []int{1},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var sess *session.Session
	for time.Now().Before(deadline) {
		sess, err = eng.GetStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if sess.Status.IsTerminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sess == nil || sess.Status != session.StatusFailed {
		t.Fatalf("expected failed session, got %+v", sess)
	}
	one, _ := sess.Stage(1)
	if one.Status != session.StageFailed {
		t.Fatalf("stage 1 should be failed, got %s", one.Status)
	}
	if !strings.Contains(one.Error, "timeout") {
		t.Fatalf("stage error should mention the timeout: %q", one.Error)
	}
}

func TestEventStreamOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newRecorder()
	started := make(chan struct{})
	release := make(chan struct{})
	set := okStages(rec)
	set[1] = func(ctx context.Context, req stage.Request) (string, error) {
		close(started)
		<-release
		rec.record(1, req.Input)
		return filepath.Join(req.WorkspaceRoot, "media", "source.mp4"), nil
	}
	eng, _, bus := newEngine(t, cfg, set)

	id, err := eng.RunSession(context.Background(), engine.RunRequest{
		Input:          "https://example.com/videos/event-order",
		SelectedStages: []int{1, 2},
	})
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}
	// Subscribe only once stage 1 is in flight; its started event has already
	// been published, so the stream deterministically begins with stage 1's
	// completion.
	<-started
	ch, cancel := bus.Subscribe(id)
	defer cancel()
	close(release)

	var kinds []progress.Kind
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
			if evt.Terminal() {
				want := []progress.Kind{
					progress.KindStageCompleted, // stage 1 (started was published before subscribe)
					progress.KindStageStarted,   // stage 2
					progress.KindStageCompleted,
					progress.KindSessionCompleted,
				}
				if fmt.Sprint(kinds) != fmt.Sprint(want) {
					t.Fatalf("unexpected event order: %v", kinds)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out; saw %v", kinds)
		}
	}
}
