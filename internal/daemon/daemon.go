package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"showrunner/internal/config"
	"showrunner/internal/deps"
	"showrunner/internal/engine"
	"showrunner/internal/logging"
	"showrunner/internal/preflight"
	"showrunner/internal/progress"
	"showrunner/internal/services"
	"showrunner/internal/session"
	"showrunner/internal/stage"
)

// Daemon coordinates the execution engine and enforces single-instance
// execution via a lock file in the log directory.
type Daemon struct {
	cfg    *config.Config
	store  *session.Store
	engine *engine.Engine
	bus    *progress.Bus
	hub    *logging.StreamHub
	logger *slog.Logger

	logPath  string
	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	shutdown context.CancelFunc

	api *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	SessionDBPath  string
	LockFilePath   string
	ActiveSessions int
	SessionStats   map[session.Status]int
	Dependencies   []deps.Status
}

// New constructs a daemon over an opened store and a configured engine.
// logPath names the current run's log file served by the IPC log tail; hub
// may be nil when log streaming is disabled.
func New(cfg *config.Config, store *session.Store, eng *engine.Engine, bus *progress.Bus, logger *slog.Logger, logPath string, hub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil || store == nil || eng == nil || bus == nil {
		return nil, errors.New("daemon requires config, store, engine, and bus")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "showrunnerd.lock")
	return &Daemon{
		cfg:      cfg,
		store:    store,
		engine:   eng,
		bus:      bus,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// SetShutdown installs the cancel function invoked when a client requests
// daemon shutdown over IPC.
func (d *Daemon) SetShutdown(cancel context.CancelFunc) {
	d.shutdown = cancel
}

// Start acquires the daemon lock, recovers sessions orphaned by a previous
// process, and brings up the HTTP API when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another showrunner daemon instance is already running")
	}

	recovered, err := d.engine.Recover(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover sessions: %w", err)
	}
	if len(recovered) > 0 {
		d.logger.Info("marked orphaned sessions interrupted",
			logging.Int("session_count", len(recovered)),
			logging.String(logging.FieldEventType, "startup_recovery"))
	}

	apiSrv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if apiSrv != nil {
		if err := apiSrv.start(ctx); err != nil {
			_ = d.lock.Unlock()
			return err
		}
		d.api = apiSrv
	}

	d.running.Store(true)
	d.logger.Info("showrunner daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the engine, shuts down the HTTP API, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.engine.Stop()
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("showrunner daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestShutdown cancels the daemon run context, triggering process exit.
func (d *Daemon) RequestShutdown() {
	if d.shutdown != nil {
		d.shutdown()
	}
}

// RunSession validates and submits a new pipeline run. An empty stage
// selection defaults to the full registry.
func (d *Daemon) RunSession(ctx context.Context, input, workspaceRoot string, selected []int) (string, error) {
	if len(selected) == 0 {
		selected = stage.AllIndices()
	}
	return d.engine.RunSession(ctx, engine.RunRequest{
		Input:          input,
		WorkspaceRoot:  workspaceRoot,
		SelectedStages: selected,
	})
}

// GetSession returns the persisted snapshot of one session.
func (d *Daemon) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return d.engine.GetStatus(ctx, sessionID)
}

// ListSessions returns sessions, active first. With explicit statuses only
// matching sessions are returned, in store order.
func (d *Daemon) ListSessions(ctx context.Context, statuses []session.Status) ([]*session.Session, error) {
	if len(statuses) > 0 {
		return d.store.List(ctx, statuses...)
	}
	active, err := d.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	terminal, err := d.store.List(ctx, session.StatusCompleted, session.StatusFailed, session.StatusInterrupted)
	if err != nil {
		return nil, err
	}
	return append(active, terminal...), nil
}

// StopSession asks a session to stop at the next stage boundary.
func (d *Daemon) StopSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return services.Wrap(services.ErrValidation, "", "stop session", "session id is required", nil)
	}
	return d.engine.RequestStop(ctx, sessionID)
}

// Subscribe attaches a progress subscriber for one session.
func (d *Daemon) Subscribe(sessionID string) (<-chan progress.Event, func()) {
	return d.bus.Subscribe(sessionID)
}

// LogPath returns the path of the current run's log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log hub, or nil when streaming is off.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("session stats unavailable", logging.Error(err))
		stats = nil
	}
	return Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		SessionDBPath:  d.store.Path(),
		LockFilePath:   d.lockPath,
		ActiveSessions: d.engine.Active(),
		SessionStats:   stats,
		Dependencies:   preflight.CheckSystemDeps(ctx, d.cfg),
	}
}
