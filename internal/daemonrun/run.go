// Package daemonrun wires the full daemon runtime: logging, the session
// store, the execution engine, the IPC socket, and signal-driven shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"log/slog"

	"showrunner/internal/config"
	"showrunner/internal/daemon"
	"showrunner/internal/engine"
	"showrunner/internal/ipc"
	"showrunner/internal/logging"
	"showrunner/internal/notifications"
	"showrunner/internal/preflight"
	"showrunner/internal/progress"
	"showrunner/internal/session"
	"showrunner/internal/stages"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// SocketName is the daemon control socket file name inside the log directory.
const SocketName = "showrunnerd.sock"

// PIDFileName is the daemon pid file name inside the log directory.
const PIDFileName = "showrunnerd.pid"

// Run starts the showrunner daemon runtime loop and blocks until the
// context is canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("showrunner-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update showrunnerd.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := session.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	bus := progress.NewBus(cfg.Engine.EventBufferSize)
	eng := engine.New(cfg, store, bus, stages.Configure(cfg, logger),
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
	)

	d, err := daemon.New(cfg, store, eng, bus, logger, logPath, logHub)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetShutdown(cancel)

	socketPath := filepath.Join(cfg.Paths.LogDir, SocketName)
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and session database access"))
		return err
	}

	<-signalCtx.Done()
	logger.Info("showrunner daemon shutting down")
	return nil
}

// ensureCurrentLogPointer keeps LogDir/showrunnerd.log pointing at the
// current run's log file.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "showrunnerd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		attrs = append(attrs, logging.Bool(dep.Name+"_available", dep.Available))
	}
	logger.Info("dependency snapshot", attrs...)
}
