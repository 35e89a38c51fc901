package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"showrunner/internal/config"
	"showrunner/internal/logging"
	"showrunner/internal/notifications"
	"showrunner/internal/progress"
	"showrunner/internal/services"
	"showrunner/internal/session"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

// Engine coordinates session execution over the configured stage set.
type Engine struct {
	cfg      *config.Config
	store    *session.Store
	bus      *progress.Bus
	stages   stage.Set
	notifier notifications.Service
	logger   *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
	closed  bool
}

type worker struct {
	stop   atomic.Bool
	cancel context.CancelFunc
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithNotifier overrides the notification service (used in tests).
func WithNotifier(notifier notifications.Service) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New constructs an execution engine over a session store and stage bindings.
func New(cfg *config.Config, store *session.Store, bus *progress.Bus, stages stage.Set, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		stages:   stages,
		notifier: notifications.NewService(cfg),
		workers:  make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = logging.NewComponentLogger(e.logger, "engine")
	return e
}

// RunRequest describes one execution request. WorkspaceRoot addresses an
// explicit workspace; when empty it is derived from Input. Input is the
// source URL or local media path handed to the first selected stage.
type RunRequest struct {
	Input          string
	WorkspaceRoot  string
	SelectedStages []int
}

// RunSession validates a request, creates the session, and starts its worker.
// It returns the new session ID immediately; execution is asynchronous.
// Validation and conflict errors are returned synchronously and never touch
// persisted state; stage failures are only observable via GetStatus or the
// event stream.
func (e *Engine) RunSession(ctx context.Context, req RunRequest) (string, error) {
	hasGaps, err := stage.ValidateSelection(req.SelectedStages)
	if err != nil {
		return "", err
	}
	for _, index := range req.SelectedStages {
		if _, ok := e.stages[index]; !ok {
			return "", services.Wrap(services.ErrValidation, stage.NameFor(index), "validate selection",
				fmt.Sprintf("stage %d has no runner configured", index), nil)
		}
	}

	var ws *workspace.Workspace
	if req.WorkspaceRoot != "" {
		ws, err = workspace.Open(req.WorkspaceRoot)
	} else {
		ws, err = workspace.Resolve(e.cfg, req.Input)
	}
	if err != nil {
		return "", err
	}

	active, err := e.store.ActiveForWorkspace(ctx, ws.Root)
	if err != nil {
		return "", err
	}
	if active != nil {
		return "", services.Wrap(services.ErrConflict, "", "run session",
			fmt.Sprintf("workspace %s already has active session %s", ws.Root, active.ID), nil)
	}

	if err := ws.EnsureLayout(); err != nil {
		return "", err
	}

	sess := session.New(ws.Root, req.Input, req.SelectedStages)
	if err := e.store.Create(ctx, sess); err != nil {
		// A racing request may have won the partial unique index.
		return "", err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		// Best effort: the session row exists but no worker will run it;
		// recovery marks it interrupted on next startup.
		_ = e.store.UpdateStatus(context.Background(), sess.ID, session.StatusInterrupted)
		return "", services.Wrap(services.ErrConflict, "", "run session", "engine is shutting down", nil)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel}
	e.workers[sess.ID] = w
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(runCtx, w, sess, ws, hasGaps)

	return sess.ID, nil
}

// GetStatus returns the current persisted snapshot of a session.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.store.Get(ctx, sessionID)
}

// RequestStop asks a session to stop at the next stage boundary. The
// in-flight stage always runs to its own completion or failure first, so stop
// latency is at most one stage's duration.
func (e *Engine) RequestStop(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	w, ok := e.workers[sessionID]
	e.mu.Unlock()
	if ok {
		w.stop.Store(true)
		return nil
	}

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.IsTerminal() {
		return services.Wrap(services.ErrConflict, "", "stop session",
			fmt.Sprintf("session %s already %s", sessionID, sess.Status), nil)
	}
	// Active in the store but not owned by a worker: left over from a
	// previous process. Mark it interrupted directly.
	if err := e.store.UpdateStatus(ctx, sessionID, session.StatusInterrupted); err != nil {
		return err
	}
	e.bus.Publish(progress.Event{
		SessionID: sessionID,
		Kind:      progress.KindSessionInterrupted,
		Status:    string(session.StatusInterrupted),
		Message:   "stop requested",
	})
	return nil
}

// Recover transitions sessions left active by a previous process to
// interrupted. Call once at startup before accepting new work.
func (e *Engine) Recover(ctx context.Context) ([]string, error) {
	ids, err := e.store.RecoverInterrupted(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		e.logger.Warn("recovered orphaned session",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_recovered"),
			logging.String(logging.FieldErrorHint, "previous process exited mid-run; restart the session to resume"),
		)
	}
	return ids, nil
}

// Active reports the number of sessions currently owned by workers.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Stop cancels all in-flight stage invocations and waits for workers to
// exit. Sessions cut off mid-stage are marked interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.closed = true
	for _, w := range e.workers {
		w.stop.Store(true)
		w.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) removeWorker(sessionID string) {
	e.mu.Lock()
	delete(e.workers, sessionID)
	e.mu.Unlock()
}
